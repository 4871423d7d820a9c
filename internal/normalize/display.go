package normalize

import (
	"fmt"
	"strings"
	"time"

	"voicecal/internal/models"
)

var urduWeekdays = [...]string{"اتوار", "پیر", "منگل", "بدھ", "جمعرات", "جمعہ", "ہفتہ"}

var urduMonths = [...]string{
	"جنوری", "فروری", "مارچ", "اپریل", "مئی", "جون",
	"جولائی", "اگست", "ستمبر", "اکتوبر", "نومبر", "دسمبر",
}

// FormatUrduDate renders the calendar date of t in loc, e.g. "پیر، 2 جون 2025".
func FormatUrduDate(t time.Time, loc *time.Location) string {
	lt := t.In(zone(loc))
	return fmt.Sprintf("%s، %d %s %d", urduWeekdays[lt.Weekday()], lt.Day(), urduMonths[lt.Month()-1], lt.Year())
}

// FormatUrduTime renders the 12-hour wall clock time of t in loc.
func FormatUrduTime(t time.Time, loc *time.Location) string {
	lt := t.In(zone(loc))
	period := "قبل دوپہر"
	if lt.Hour() >= 12 {
		period = "بعد دوپہر"
	}
	hour := lt.Hour() % 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%d:%02d %s", hour, lt.Minute(), period)
}

// RecurrenceLabel names the frequency of the first rule.
func RecurrenceLabel(rules []string) string {
	if len(rules) == 0 {
		return ""
	}
	switch r := strings.ToUpper(rules[0]); {
	case strings.Contains(r, "DAILY"):
		return "روزانہ"
	case strings.Contains(r, "WEEKLY"):
		return "ہفتہ وار"
	case strings.Contains(r, "MONTHLY"):
		return "ماہانہ"
	default:
		return "سالانہ"
	}
}

// ReminderLabel renders an override as "ای میل: 30 منٹ پہلے".
func ReminderLabel(o models.ReminderOverride) string {
	method := "پاپ اپ"
	if o.Method == "email" {
		method = "ای میل"
	}
	return fmt.Sprintf("%s: %d منٹ پہلے", method, o.Minutes)
}

// Describe renders a short multi-line summary of ev in loc for terminals.
func Describe(ev models.StructuredEvent, loc *time.Location) string {
	var b strings.Builder
	b.WriteString(ev.Summary)
	b.WriteString("\n")

	start, errStart := ev.Start.Time(loc)
	end, errEnd := ev.End.Time(loc)
	if errStart == nil && errEnd == nil {
		fmt.Fprintf(&b, "  تاریخ: %s\n", FormatUrduDate(start, loc))
		fmt.Fprintf(&b, "  وقت: %s - %s\n", FormatUrduTime(start, loc), FormatUrduTime(end, loc))
	}
	if ev.Location != "" {
		fmt.Fprintf(&b, "  مقام: %s\n", ev.Location)
	}
	if ev.Description != "" {
		fmt.Fprintf(&b, "  تفصیل: %s\n", ev.Description)
	}
	for _, a := range ev.Attendees {
		fmt.Fprintf(&b, "  شرکاء: %s\n", a.Email)
	}
	if label := RecurrenceLabel(ev.Recurrence); label != "" {
		fmt.Fprintf(&b, "  تکرار: %s\n", label)
	}
	if ev.Reminders != nil {
		for _, o := range ev.Reminders.Overrides {
			fmt.Fprintf(&b, "  یاد دہانی: %s\n", ReminderLabel(o))
		}
	}
	return b.String()
}
