package normalize_test

import (
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"voicecal/internal/models"
	"voicecal/internal/normalize"
)

func TestUrduFormatting(t *testing.T) {
	loc := karachi(t)
	at := time.Date(2025, 6, 2, 4, 5, 0, 0, time.UTC) // 09:05 in Karachi, a Monday

	Convey("Dates and times render in Urdu", t, func() {
		So(normalize.FormatUrduDate(at, loc), ShouldEqual, "پیر، 2 جون 2025")
		So(normalize.FormatUrduTime(at, loc), ShouldEqual, "9:05 قبل دوپہر")
		So(normalize.FormatUrduTime(at.Add(9*time.Hour), loc), ShouldEqual, "6:05 بعد دوپہر")
		So(normalize.FormatUrduTime(time.Date(2025, 6, 2, 0, 30, 0, 0, loc), loc), ShouldEqual, "12:30 قبل دوپہر")
	})

	Convey("Recurrence labels", t, func() {
		So(normalize.RecurrenceLabel(nil), ShouldBeEmpty)
		So(normalize.RecurrenceLabel([]string{"RRULE:FREQ=DAILY"}), ShouldEqual, "روزانہ")
		So(normalize.RecurrenceLabel([]string{"RRULE:FREQ=WEEKLY;BYDAY=MO"}), ShouldEqual, "ہفتہ وار")
		So(normalize.RecurrenceLabel([]string{"RRULE:FREQ=MONTHLY"}), ShouldEqual, "ماہانہ")
		So(normalize.RecurrenceLabel([]string{"RRULE:FREQ=YEARLY"}), ShouldEqual, "سالانہ")
	})

	Convey("Describe includes the optional fields that are set", t, func() {
		ev := models.StructuredEvent{
			Summary:  "میٹنگ",
			Location: "لاہور",
			Start:    models.EventDateTime{DateTime: "2025-06-02T09:00:00+05:00"},
			End:      models.EventDateTime{DateTime: "2025-06-02T10:00:00+05:00"},
			Reminders: &models.Reminders{Overrides: []models.ReminderOverride{
				{Method: "email", Minutes: 30},
			}},
		}
		out := normalize.Describe(ev, loc)
		So(out, ShouldStartWith, "میٹنگ\n")
		So(out, ShouldContainSubstring, "لاہور")
		So(out, ShouldContainSubstring, "ای میل: 30 منٹ پہلے")
		So(out, ShouldNotContainSubstring, "تکرار")
	})
}
