package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"voicecal/internal/models"
)

// DefaultCalendarID is the authenticated user's main calendar.
const DefaultCalendarID = "primary"

// CalendarClient stores events in one Google Calendar. It keeps no state
// between calls; the credential is resolved again for every request.
type CalendarClient struct {
	creds      Credentials
	calendarID string
	endpoint   string
	logger     *slog.Logger
}

// Option configures a CalendarClient.
type Option func(*CalendarClient)

// WithEndpoint overrides the API base URL.
func WithEndpoint(url string) Option {
	return func(c *CalendarClient) { c.endpoint = url }
}

// NewClient creates a Google Calendar client writing to calendarID.
func NewClient(logger *slog.Logger, creds Credentials, calendarID string, opts ...Option) *CalendarClient {
	if calendarID == "" {
		calendarID = DefaultCalendarID
	}
	c := &CalendarClient{creds: creds, calendarID: calendarID, logger: logger}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *CalendarClient) service(ctx context.Context) (*calendar.Service, error) {
	ts, err := c.creds.TokenSource(ctx)
	if err != nil {
		return nil, err
	}
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrAuth, err)
	}
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token", models.ErrAuth)
	}

	opts := []option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, oauth2.ReuseTokenSource(tok, ts)))}
	if c.endpoint != "" {
		opts = append(opts, option.WithEndpoint(c.endpoint))
	}
	service, err := calendar.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return service, nil
}

// Insert creates the event and returns its Google id.
func (c *CalendarClient) Insert(ctx context.Context, event models.StructuredEvent) (string, error) {
	service, err := c.service(ctx)
	if err != nil {
		return "", err
	}

	created, err := service.Events.Insert(c.calendarID, toGoogleEvent(event)).Context(ctx).Do()
	if err != nil {
		return "", classify("insert", err)
	}

	c.logger.Info("Created event in Google Calendar", "title", event.Summary, "id", created.Id, "calendarID", c.calendarID)
	return created.Id, nil
}

// Delete removes the event. An event the API reports as already gone counts
// as deleted.
func (c *CalendarClient) Delete(ctx context.Context, eventID string) error {
	service, err := c.service(ctx)
	if err != nil {
		return err
	}

	err = service.Events.Delete(c.calendarID, eventID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && gerr.Code == http.StatusGone {
		c.logger.Info("Event was already deleted", "id", eventID)
		return nil
	}
	if err != nil {
		return classify("delete", err)
	}

	c.logger.Info("Deleted event from Google Calendar", "id", eventID, "calendarID", c.calendarID)
	return nil
}

// List returns the timed events between timeMin and timeMax, expanded into
// single instances and ordered by start. timeZone controls the zone of the
// returned times.
func (c *CalendarClient) List(ctx context.Context, timeMin, timeMax time.Time, timeZone string) ([]models.CalendarEntry, error) {
	service, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("Fetching events", "calendarID", c.calendarID, "timeMin", timeMin, "timeMax", timeMax)
	call := service.Events.List(c.calendarID).
		ShowDeleted(false).
		SingleEvents(true).
		TimeMin(timeMin.Format(time.RFC3339)).
		TimeMax(timeMax.Format(time.RFC3339)).
		OrderBy("startTime").
		Context(ctx)
	if timeZone != "" {
		call = call.TimeZone(timeZone)
	}

	var entries []models.CalendarEntry
	err = call.Pages(ctx, func(page *calendar.Events) error {
		entries = append(entries, toEntries(page.Items)...)
		return nil
	})
	if err != nil {
		return nil, classify("list", err)
	}

	c.logger.Info("Fetched events from Google Calendar", "count", len(entries), "calendarID", c.calendarID)
	return entries, nil
}

// Calendars lists the ids of every calendar on the account.
func (c *CalendarClient) Calendars(ctx context.Context) ([]string, error) {
	service, err := c.service(ctx)
	if err != nil {
		return nil, err
	}

	list, err := service.CalendarList.List().Context(ctx).Do()
	if err != nil {
		return nil, classify("calendar list", err)
	}

	var calendarIDs []string
	for _, item := range list.Items {
		calendarIDs = append(calendarIDs, item.Id)
	}
	return calendarIDs, nil
}

// classify maps API failures onto the pipeline's error taxonomy.
func classify(op string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		if gerr.Code == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", models.ErrAuth, gerr.Message)
		}
		return &models.RemoteServiceError{Op: op, Status: gerr.Code, Err: err}
	}
	return &models.RemoteServiceError{Op: op, Err: err}
}

// toGoogleEvent converts the internal event to the API resource.
func toGoogleEvent(event models.StructuredEvent) *calendar.Event {
	ge := &calendar.Event{
		Summary:     event.Summary,
		Location:    event.Location,
		Description: event.Description,
		Start:       &calendar.EventDateTime{DateTime: event.Start.DateTime, TimeZone: event.Start.TimeZone},
		End:         &calendar.EventDateTime{DateTime: event.End.DateTime, TimeZone: event.End.TimeZone},
		Recurrence:  event.Recurrence,
	}
	for _, a := range event.Attendees {
		ge.Attendees = append(ge.Attendees, &calendar.EventAttendee{Email: a.Email})
	}
	if r := event.Reminders; r != nil {
		// useDefault=false must be sent explicitly or the API keeps the default.
		ge.Reminders = &calendar.EventReminders{
			UseDefault:      r.UseDefault,
			ForceSendFields: []string{"UseDefault"},
		}
		for _, o := range r.Overrides {
			ge.Reminders.Overrides = append(ge.Reminders.Overrides, &calendar.EventReminder{
				Method:          o.Method,
				Minutes:         int64(o.Minutes),
				ForceSendFields: []string{"Minutes"},
			})
		}
	}
	return ge
}

// toEntries converts API events to calendar entries.
func toEntries(items []*calendar.Event) []models.CalendarEntry {
	var entries []models.CalendarEntry
	for _, item := range items {
		// Skip all-day events, they carry a date and no dateTime.
		if item.Start == nil || item.Start.DateTime == "" || item.End == nil {
			continue
		}

		event := models.StructuredEvent{
			Summary:     item.Summary,
			Location:    item.Location,
			Description: item.Description,
			Start:       models.EventDateTime{DateTime: item.Start.DateTime, TimeZone: item.Start.TimeZone},
			End:         models.EventDateTime{DateTime: item.End.DateTime, TimeZone: item.End.TimeZone},
			Recurrence:  item.Recurrence,
		}
		for _, a := range item.Attendees {
			event.Attendees = append(event.Attendees, models.Attendee{Email: a.Email})
		}
		if item.Reminders != nil {
			r := &models.Reminders{UseDefault: item.Reminders.UseDefault}
			for _, o := range item.Reminders.Overrides {
				r.Overrides = append(r.Overrides, models.ReminderOverride{Method: o.Method, Minutes: int(o.Minutes)})
			}
			event.Reminders = r
		}
		entries = append(entries, models.CalendarEntry{ID: item.Id, Link: item.HtmlLink, Event: event})
	}
	return entries
}
