package icloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/emersion/go-ical"
	"github.com/emersion/go-webdav"
	"github.com/emersion/go-webdav/caldav"
	"github.com/google/uuid"
	"github.com/teambition/rrule-go"

	"voicecal/internal/models"
)

const (
	// DefaultEndpoint is Apple's CalDAV server.
	DefaultEndpoint = "https://caldav.icloud.com/"
	productID       = "-//voicecal//EN"
)

// customTransport handles adding Basic Auth and custom headers to requests.
// A 401 from the server is reported as models.ErrAuth.
type customTransport struct {
	Username  string
	Password  string
	Transport http.RoundTripper
}

// RoundTrip adds required headers and authentication to each request.
func (t *customTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.SetBasicAuth(t.Username, t.Password)
	req.Header.Set("User-Agent", "voicecal/1.0")
	resp, err := t.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: CalDAV server rejected the credentials", models.ErrAuth)
	}
	return resp, nil
}

// CalDAVClient stores events in one CalDAV calendar (iCloud by default).
type CalDAVClient struct {
	caldavClient *caldav.Client
	webdavClient *webdav.Client
	logger       *slog.Logger
	endpoint     string
	calendarPath string
}

// NewClient connects to endpoint and resolves the calendar named
// calendarName. Missing credentials are reported as models.ErrAuth.
func NewClient(ctx context.Context, logger *slog.Logger, endpoint, username, password, calendarName string) (*CalDAVClient, error) {
	if username == "" || password == "" {
		return nil, fmt.Errorf("%w: CalDAV username and password are required", models.ErrAuth)
	}
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	httpClient := &http.Client{Transport: &customTransport{
		Username:  username,
		Password:  password,
		Transport: http.DefaultTransport,
	}}

	c, err := newClient(logger, httpClient, endpoint)
	if err != nil {
		return nil, err
	}

	logger.Info("Finding CalDAV calendar", "calendarName", calendarName)
	calendarPath, err := c.findCalendar(ctx, calendarName)
	if err != nil {
		return nil, fmt.Errorf("could not find calendar '%s': %w", calendarName, err)
	}
	c.calendarPath = calendarPath
	logger.Info("Successfully found CalDAV calendar", "path", calendarPath)

	return c, nil
}

func newClient(logger *slog.Logger, httpClient webdav.HTTPClient, endpoint string) (*CalDAVClient, error) {
	caldavClient, err := caldav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create caldav client: %w", err)
	}
	webdavClient, err := webdav.NewClient(httpClient, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create webdav client: %w", err)
	}
	return &CalDAVClient{
		caldavClient: caldavClient,
		webdavClient: webdavClient,
		logger:       logger,
		endpoint:     endpoint,
	}, nil
}

// Insert writes the event as a new calendar object and returns its UID.
func (c *CalDAVClient) Insert(ctx context.Context, event models.StructuredEvent) (string, error) {
	uid := GenerateUID()
	cal, err := c.toCalendar(event, uid, time.Now().UTC())
	if err != nil {
		return "", &models.RemoteServiceError{Op: "insert", Err: err}
	}

	writer, err := c.webdavClient.Create(ctx, c.objectPath(uid))
	if err != nil {
		return "", classify("insert", err)
	}
	if err := ical.NewEncoder(writer).Encode(cal); err != nil {
		// A failed upload closes the pipe under the encoder; report that first.
		if cerr := writer.Close(); cerr != nil {
			return "", classify("insert", cerr)
		}
		return "", &models.RemoteServiceError{Op: "insert", Err: fmt.Errorf("failed to encode event to iCal format: %w", err)}
	}
	// The PUT completes on Close.
	if err := writer.Close(); err != nil {
		return "", classify("insert", err)
	}

	c.logger.Info("Created event on CalDAV server", "title", event.Summary, "uid", uid)
	return uid, nil
}

// Delete removes the calendar object for uid.
func (c *CalDAVClient) Delete(ctx context.Context, uid string) error {
	if err := c.webdavClient.RemoveAll(ctx, c.objectPath(uid)); err != nil {
		return classify("delete", err)
	}
	c.logger.Info("Deleted event from CalDAV server", "uid", uid)
	return nil
}

// List queries events overlapping [timeMin, timeMax]. Times are rendered
// in timeZone, or UTC when it is empty or unknown.
func (c *CalDAVClient) List(ctx context.Context, timeMin, timeMax time.Time, timeZone string) ([]models.CalendarEntry, error) {
	query := &caldav.CalendarQuery{
		CompRequest: caldav.CalendarCompRequest{
			Name:  "VCALENDAR",
			Comps: []caldav.CalendarCompRequest{{Name: "VEVENT", AllProps: true}},
		},
		CompFilter: caldav.CompFilter{
			Name:  "VCALENDAR",
			Comps: []caldav.CompFilter{{Name: "VEVENT", Start: timeMin, End: timeMax}},
		},
	}
	objects, err := c.caldavClient.QueryCalendar(ctx, c.calendarPath, query)
	if err != nil {
		return nil, classify("list", err)
	}

	loc := time.UTC
	if l, err := time.LoadLocation(timeZone); err == nil && timeZone != "" {
		loc = l
	}
	var entries []models.CalendarEntry
	for _, obj := range objects {
		if obj.Data == nil {
			continue
		}
		entries = append(entries, fromCalendar(obj.Data, loc)...)
	}
	c.logger.Info("Fetched events from CalDAV server", "count", len(entries))
	return entries, nil
}

func (c *CalDAVClient) objectPath(uid string) string {
	return path.Join(c.calendarPath, uid+".ics")
}

// toCalendar wraps the event in a VCALENDAR. Times are written in UTC.
func (c *CalDAVClient) toCalendar(event models.StructuredEvent, uid string, stamp time.Time) (*ical.Calendar, error) {
	start, err := event.Start.Time(nil)
	if err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}
	end, err := event.End.Time(nil)
	if err != nil {
		return nil, fmt.Errorf("end: %w", err)
	}

	ve := ical.NewComponent(ical.CompEvent)
	ve.Props.SetText(ical.PropUID, uid)
	ve.Props.SetText(ical.PropSummary, event.Summary)
	ve.Props.SetDateTime(ical.PropDateTimeStamp, stamp.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeStart, start.UTC())
	ve.Props.SetDateTime(ical.PropDateTimeEnd, end.UTC())

	if event.Description != "" {
		ve.Props.SetText(ical.PropDescription, event.Description)
	}
	if event.Location != "" {
		ve.Props.SetText(ical.PropLocation, event.Location)
	}
	for _, attendee := range event.Attendees {
		p := ical.NewProp(ical.PropAttendee)
		p.Value = fmt.Sprintf("mailto:%s", attendee.Email)
		ve.Props.Add(p)
	}

	if err := c.setRecurrence(ve, event.Recurrence); err != nil {
		return nil, err
	}
	if r := event.Reminders; r != nil {
		for _, o := range r.Overrides {
			ve.Children = append(ve.Children, alarm(event.Summary, o))
		}
	}

	cal := ical.NewCalendar()
	cal.Props.SetText(ical.PropVersion, "2.0")
	cal.Props.SetText(ical.PropProductID, productID)
	cal.Children = append(cal.Children, ve)
	return cal, nil
}

// setRecurrence validates the first RRULE line with rrule-go. Other
// recurrence lines (EXDATE, RDATE) are not carried over to CalDAV.
func (c *CalDAVClient) setRecurrence(ve *ical.Component, lines []string) error {
	set := false
	for _, line := range lines {
		value, ok := strings.CutPrefix(strings.TrimSpace(line), "RRULE:")
		if !ok {
			c.logger.Warn("Skipping unsupported recurrence line", "line", line)
			continue
		}
		if set {
			c.logger.Warn("Skipping additional RRULE", "line", line)
			continue
		}
		opt, err := rrule.StrToROption(value)
		if err != nil {
			return fmt.Errorf("invalid recurrence rule %q: %w", line, err)
		}
		ve.Props.SetRecurrenceRule(opt)
		set = true
	}
	return nil
}

func alarm(summary string, o models.ReminderOverride) *ical.Component {
	a := ical.NewComponent(ical.CompAlarm)
	action := "DISPLAY"
	if o.Method == "email" {
		action = "EMAIL"
	}
	a.Props.SetText(ical.PropAction, action)
	a.Props.SetText(ical.PropDescription, summary)
	if action == "EMAIL" {
		a.Props.SetText(ical.PropSummary, summary)
	}
	trigger := ical.NewProp(ical.PropTrigger)
	trigger.SetValueType(ical.ValueDuration)
	trigger.Value = fmt.Sprintf("-PT%dM", o.Minutes)
	a.Props.Set(trigger)
	return a
}

// fromCalendar converts every VEVENT in cal into a calendar entry keyed by UID.
func fromCalendar(cal *ical.Calendar, loc *time.Location) []models.CalendarEntry {
	var entries []models.CalendarEntry
	for _, ev := range cal.Events() {
		uid, _ := ev.Props.Text(ical.PropUID)
		start, err := ev.DateTimeStart(loc)
		if err != nil {
			continue
		}
		end, err := ev.DateTimeEnd(loc)
		if err != nil {
			continue
		}
		event := models.StructuredEvent{
			Start: models.NewEventDateTime(start, loc),
			End:   models.NewEventDateTime(end, loc),
		}
		event.Summary, _ = ev.Props.Text(ical.PropSummary)
		event.Location, _ = ev.Props.Text(ical.PropLocation)
		event.Description, _ = ev.Props.Text(ical.PropDescription)
		if p := ev.Props.Get(ical.PropRecurrenceRule); p != nil {
			event.Recurrence = []string{"RRULE:" + p.Value}
		}
		for _, p := range ev.Props.Values(ical.PropAttendee) {
			event.Attendees = append(event.Attendees, models.Attendee{Email: strings.TrimPrefix(p.Value, "mailto:")})
		}
		entries = append(entries, models.CalendarEntry{ID: uid, Event: event})
	}
	return entries
}

// Calendars lists the names of the user's calendars.
func (c *CalDAVClient) Calendars(ctx context.Context) ([]string, error) {
	calendars, err := c.discover(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, cal := range calendars {
		names = append(names, cal.Name)
	}
	return names, nil
}

// findCalendar returns the path of the calendar with the matching name.
func (c *CalDAVClient) findCalendar(ctx context.Context, name string) (string, error) {
	calendars, err := c.discover(ctx)
	if err != nil {
		return "", err
	}
	for _, cal := range calendars {
		if cal.Name == name {
			return cal.Path, nil
		}
	}
	return "", fmt.Errorf("no calendar found with name '%s'", name)
}

func (c *CalDAVClient) discover(ctx context.Context) ([]caldav.Calendar, error) {
	principalPath, err := c.caldavClient.FindCurrentUserPrincipal(ctx)
	if err != nil {
		return nil, classify("discover", fmt.Errorf("failed to find principal path: %w", err))
	}

	homeSetPath, err := c.caldavClient.FindCalendarHomeSet(ctx, principalPath)
	if err != nil {
		return nil, classify("discover", fmt.Errorf("failed to find calendar home set: %w", err))
	}

	calendars, err := c.caldavClient.FindCalendars(ctx, homeSetPath)
	if err != nil {
		return nil, classify("discover", fmt.Errorf("failed to find calendars: %w", err))
	}
	return calendars, nil
}

func classify(op string, err error) error {
	if errors.Is(err, models.ErrAuth) {
		return err
	}
	return &models.RemoteServiceError{Op: op, Err: err}
}

// GenerateUID creates a new unique identifier for an event.
func GenerateUID() string {
	return uuid.New().String()
}
