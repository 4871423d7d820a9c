package google_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/auth"
	"voicecal/internal/google"
	"voicecal/internal/models"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleEvent() models.StructuredEvent {
	return models.StructuredEvent{
		Summary: "میٹنگ",
		Start:   models.EventDateTime{DateTime: "2025-06-02T09:00:00+05:00", TimeZone: "Asia/Karachi"},
		End:     models.EventDateTime{DateTime: "2025-06-02T10:00:00+05:00", TimeZone: "Asia/Karachi"},
		Attendees: []models.Attendee{
			{Email: "a@example.com"},
		},
		Reminders: &models.Reminders{
			UseDefault: false,
			Overrides:  []models.ReminderOverride{{Method: "popup", Minutes: 10}},
		},
	}
}

func TestInsert(t *testing.T) {
	Convey("Given a fake Calendar API", t, func() {
		var path, authz string
		var body map[string]any
		var calls int
		status := http.StatusOK
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls++
			path = r.Method + " " + r.URL.Path
			authz = r.Header.Get("Authorization")
			_ = json.NewDecoder(r.Body).Decode(&body)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			if status != http.StatusOK {
				_, _ = io.WriteString(w, `{"error":{"code":`+strconv.Itoa(status)+`,"message":"rejected"}}`)
				return
			}
			_, _ = io.WriteString(w, `{"id":"evt-1","summary":"میٹنگ"}`)
		}))
		defer srv.Close()

		client := google.NewClient(discard(), google.BearerCredentials{}, "", google.WithEndpoint(srv.URL+"/"))
		ctx := auth.WithBearer(context.Background(), "abc")

		Convey("Insert sends the event with the caller's token", func() {
			id, err := client.Insert(ctx, sampleEvent())

			So(err, ShouldBeNil)
			So(id, ShouldEqual, "evt-1")
			So(path, ShouldEqual, "POST /calendars/primary/events")
			So(authz, ShouldEqual, "Bearer abc")
			So(body["summary"], ShouldEqual, "میٹنگ")
			reminders := body["reminders"].(map[string]any)
			So(reminders["useDefault"], ShouldEqual, false)
			So(reminders["overrides"], ShouldHaveLength, 1)
			So(body["attendees"], ShouldHaveLength, 1)
		})

		Convey("A 401 maps to the auth error", func() {
			status = http.StatusUnauthorized
			_, err := client.Insert(ctx, sampleEvent())
			So(errors.Is(err, models.ErrAuth), ShouldBeTrue)
		})

		Convey("Other rejections map to a remote service error", func() {
			status = http.StatusBadRequest
			_, err := client.Insert(ctx, sampleEvent())
			var remote *models.RemoteServiceError
			So(errors.As(err, &remote), ShouldBeTrue)
			So(remote.Op, ShouldEqual, "insert")
			So(remote.Status, ShouldEqual, http.StatusBadRequest)
		})

		Convey("Without a credential nothing is sent", func() {
			_, err := client.Insert(context.Background(), sampleEvent())
			So(errors.Is(err, models.ErrAuth), ShouldBeTrue)
			So(calls, ShouldEqual, 0)
		})
	})
}

func TestDelete(t *testing.T) {
	Convey("Given a fake Calendar API", t, func() {
		status := http.StatusNoContent
		var path string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path = r.Method + " " + r.URL.Path
			w.WriteHeader(status)
		}))
		defer srv.Close()

		client := google.NewClient(discard(), google.BearerCredentials{}, "work@example.com", google.WithEndpoint(srv.URL+"/"))
		ctx := auth.WithBearer(context.Background(), "abc")

		Convey("Delete targets the configured calendar", func() {
			So(client.Delete(ctx, "evt-1"), ShouldBeNil)
			So(path, ShouldEqual, "DELETE /calendars/work@example.com/events/evt-1")
		})

		Convey("An event that is already gone counts as deleted", func() {
			status = http.StatusGone
			So(client.Delete(ctx, "evt-1"), ShouldBeNil)
		})

		Convey("A missing event is a remote error", func() {
			status = http.StatusNotFound
			err := client.Delete(ctx, "evt-1")
			So(models.IsRemote(err), ShouldBeTrue)
		})
	})
}

func TestList(t *testing.T) {
	Convey("List returns timed events and skips all-day ones", t, func() {
		var query map[string][]string
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			query = r.URL.Query()
			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"items":[
				{"id":"a","summary":"one","htmlLink":"https://calendar/a",
				 "start":{"dateTime":"2025-06-02T09:00:00+05:00"},"end":{"dateTime":"2025-06-02T10:00:00+05:00"},
				 "reminders":{"useDefault":true}},
				{"id":"b","summary":"holiday","start":{"date":"2025-06-03"},"end":{"date":"2025-06-04"}}
			]}`)
		}))
		defer srv.Close()

		client := google.NewClient(discard(), google.BearerCredentials{}, "", google.WithEndpoint(srv.URL+"/"))
		ctx := auth.WithBearer(context.Background(), "abc")
		from := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

		entries, err := client.List(ctx, from, from.Add(7*24*time.Hour), "Asia/Karachi")

		So(err, ShouldBeNil)
		So(entries, ShouldHaveLength, 1)
		So(entries[0].ID, ShouldEqual, "a")
		So(entries[0].Link, ShouldEqual, "https://calendar/a")
		So(entries[0].Event.Reminders.UseDefault, ShouldBeTrue)
		So(query["timeZone"], ShouldResemble, []string{"Asia/Karachi"})
		So(query["singleEvents"], ShouldResemble, []string{"true"})
		So(query["timeMin"], ShouldResemble, []string{"2025-06-01T00:00:00Z"})
	})
}

func TestFileCredentials(t *testing.T) {
	Convey("FileCredentials", t, func() {
		dir := t.TempDir()

		Convey("A missing token file is an auth error", func() {
			_, err := google.FileCredentials{Path: filepath.Join(dir, "none.json")}.TokenSource(context.Background())
			So(errors.Is(err, models.ErrAuth), ShouldBeTrue)
		})

		Convey("A saved token is loaded", func() {
			path := filepath.Join(dir, "token.json")
			So(os.WriteFile(path, []byte(`{"access_token":"saved","token_type":"Bearer"}`), 0o600), ShouldBeNil)

			ts, err := google.FileCredentials{Path: path}.TokenSource(context.Background())
			So(err, ShouldBeNil)
			tok, err := ts.Token()
			So(err, ShouldBeNil)
			So(tok.AccessToken, ShouldEqual, "saved")
		})
	})
}
