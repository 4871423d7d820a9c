package extract

import (
	"fmt"
	"strings"
	"time"

	"voicecal/internal/normalize"
)

// SystemPrompt builds the completion instructions anchored to now in loc.
// The model's own idea of the current date is never trusted: today,
// tomorrow and the local offset are spelled out, and every configured
// placeholder month is forbidden explicitly.
func SystemPrompt(now time.Time, loc *time.Location, placeholders []normalize.Placeholder) string {
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	today := normalize.Today(now, loc)
	tomorrow := today.AddDate(0, 0, 1)
	offset := local.Format("-07:00")

	var b strings.Builder
	b.WriteString("You are an assistant that extracts calendar event details from Urdu text.\n")
	b.WriteString("Return a single JSON object for the Google Calendar API with these fields:\n")
	b.WriteString("- summary: event title in Urdu (required)\n")
	b.WriteString("- location: location in Urdu, only if mentioned\n")
	b.WriteString("- description: description in Urdu, only if mentioned\n")
	fmt.Fprintf(&b, "- start.dateTime: start in ISO format YYYY-MM-DDTHH:MM:SS%s\n", offset)
	fmt.Fprintf(&b, "- start.timeZone: %q\n", loc.String())
	fmt.Fprintf(&b, "- end.dateTime: end in ISO format YYYY-MM-DDTHH:MM:SS%s\n", offset)
	fmt.Fprintf(&b, "- end.timeZone: %q\n", loc.String())
	b.WriteString("- recurrence: array of RRULE strings, only if mentioned\n")
	b.WriteString("- attendees: array of objects with an email field, only if mentioned\n")
	b.WriteString("- reminders: object with useDefault and an overrides array of {method: \"email\"|\"popup\", minutes}, only if mentioned\n")
	b.WriteString("Do not add any other fields.\n\n")

	fmt.Fprintf(&b, "Today's date is %s (%s).\n", today.Format("2006-01-02"), today.Weekday())
	fmt.Fprintf(&b, "The current time is %s.\n", local.Format("15:04"))
	fmt.Fprintf(&b, "Tomorrow's date is %s (%s).\n", tomorrow.Format("2006-01-02"), tomorrow.Weekday())
	fmt.Fprintf(&b, "The user's time zone is %s.\n", loc.String())
	b.WriteString("Resolve relative dates against today's date above. In a scheduling request \"کل\" means tomorrow and \"پرسوں\" means the day after tomorrow.\n")
	b.WriteString("Never return a start time earlier than the current time.\n")
	for _, p := range placeholders {
		fmt.Fprintf(&b, "CRITICAL: DO NOT use %s %d as a default date under any circumstances.\n", p.Month, p.Year)
	}
	b.WriteString("\n")

	b.WriteString("If no time is mentioned, start at 09:00 and end at 10:00.\n")
	b.WriteString("If only a start time is mentioned, the event lasts one hour.\n")
	fmt.Fprintf(&b, "If no date is mentioned, use tomorrow's date (%s).\n\n", tomorrow.Format("2006-01-02"))
	b.WriteString("Return ONLY the JSON object without any explanations or markdown.")
	return b.String()
}
