package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/config"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"VOICECAL_CONFIG", "VOICECAL_TIMEZONE", "VOICECAL_BACKEND", "VOICECAL_PLACEHOLDERS",
		"VOICECAL_MIN_LEAD", "VOICECAL_OPENAI_API_KEY", "VOICECAL_ALLOWED_ORIGINS", "VOICECAL_ICLOUD_CALENDAR",
	} {
		t.Setenv(key, "")
		_ = os.Unsetenv(key)
	}
}

func karachiZone(t *testing.T) *time.Location {
	loc, err := time.LoadLocation("Asia/Karachi")
	if err != nil {
		t.Fatal(err)
	}
	return loc
}

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "voicecal.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoad(t *testing.T) {
	Convey("Given no config file and no env", t, func() {
		clearEnv(t)

		cfg, err := config.Load()

		Convey("Defaults are used", func() {
			So(err, ShouldBeNil)
			So(cfg.Timezone, ShouldEqual, "Asia/Karachi")
			So(cfg.Language, ShouldEqual, "ur")
			So(cfg.Backend, ShouldEqual, config.BackendGoogle)
			So(cfg.CalendarID, ShouldEqual, "primary")
			So(cfg.Placeholders, ShouldResemble, []string{"2023-10"})
			So(cfg.MinLead, ShouldEqual, time.Hour)
			So(cfg.Addr, ShouldEqual, ":8080")
		})
	})

	Convey("Given env overrides", t, func() {
		clearEnv(t)
		t.Setenv("VOICECAL_OPENAI_API_KEY", "sk-test")
		t.Setenv("VOICECAL_TIMEZONE", "Europe/London")
		t.Setenv("VOICECAL_PLACEHOLDERS", "2023-10, 2024-04")
		t.Setenv("VOICECAL_MIN_LEAD", "30m")

		cfg, err := config.Load()

		Convey("They win over defaults", func() {
			So(err, ShouldBeNil)
			So(cfg.OpenAIAPIKey, ShouldEqual, "sk-test")
			So(cfg.Timezone, ShouldEqual, "Europe/London")
			So(cfg.Placeholders, ShouldResemble, []string{"2023-10", "2024-04"})
			So(cfg.MinLead, ShouldEqual, 30*time.Minute)
		})
	})

	Convey("Given a YAML file and env", t, func() {
		clearEnv(t)
		path := writeConfig(t, `
backend: caldav
icloud_calendar: Work
timezone: Asia/Dubai
allowed_origins:
  - https://a.example
  - https://b.example
`)
		t.Setenv("VOICECAL_CONFIG", path)
		t.Setenv("VOICECAL_TIMEZONE", "Asia/Karachi")

		cfg, err := config.Load()

		Convey("The file is read and env still wins", func() {
			So(err, ShouldBeNil)
			So(cfg.Backend, ShouldEqual, config.BackendCalDAV)
			So(cfg.ICloudCalendar, ShouldEqual, "Work")
			So(cfg.Timezone, ShouldEqual, "Asia/Karachi")
			So(cfg.AllowedOrigins, ShouldResemble, []string{"https://a.example", "https://b.example"})
		})
	})

	Convey("Given invalid values", t, func() {
		clearEnv(t)

		Convey("An unknown backend is rejected", func() {
			t.Setenv("VOICECAL_BACKEND", "outlook")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("An unknown timezone is rejected", func() {
			t.Setenv("VOICECAL_TIMEZONE", "Mars/Olympus")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A malformed placeholder is rejected", func() {
			t.Setenv("VOICECAL_PLACEHOLDERS", "October")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A placeholder for the current or a later month is rejected", func() {
			t.Setenv("VOICECAL_PLACEHOLDERS", "2023-10,2999-01")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "2999-01")

			t.Setenv("VOICECAL_PLACEHOLDERS", time.Now().In(karachiZone(t)).Format("2006-01"))
			_, err = config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("caldav needs a calendar name", func() {
			t.Setenv("VOICECAL_BACKEND", "caldav")
			_, err := config.Load()
			So(errors.Is(err, config.ErrInvalidConfig), ShouldBeTrue)
		})

		Convey("A missing config file is an error", func() {
			t.Setenv("VOICECAL_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
			_, err := config.Load()
			So(err, ShouldNotBeNil)
		})
	})
}

func TestAccessors(t *testing.T) {
	Convey("Location and PlaceholderSet parse the raw values", t, func() {
		cfg := config.New()
		loc, err := cfg.Location()
		So(err, ShouldBeNil)
		So(loc.String(), ShouldEqual, "Asia/Karachi")

		ps, err := cfg.PlaceholderSet()
		So(err, ShouldBeNil)
		So(ps, ShouldHaveLength, 1)
		So(ps[0].String(), ShouldEqual, "2023-10")

		cfg.Placeholders = nil
		ps, err = cfg.PlaceholderSet()
		So(err, ShouldBeNil)
		So(ps, ShouldBeEmpty)
	})
}
