package render

import "time"

// DateStyle selects one of the date layouts used on screen.
type DateStyle string

const (
	DateFull  DateStyle = "full"
	DateShort DateStyle = "short"
	DateDay   DateStyle = "day"
	DateISO   DateStyle = "iso"
)

// FormatTime renders a clock time in 24-hour or 12-hour form.
func FormatTime(t time.Time, use24h, seconds bool) string {
	switch {
	case use24h && seconds:
		return t.Format("15:04:05")
	case use24h:
		return t.Format("15:04")
	case seconds:
		return t.Format("03:04:05 PM")
	default:
		return t.Format("03:04 PM")
	}
}

// FormatDate renders a date in the given style. Unknown styles use ISO.
func FormatDate(t time.Time, style DateStyle) string {
	switch style {
	case DateFull:
		return t.Format("Monday, January 02, 2006")
	case DateShort:
		return t.Format("01/02/2006")
	case DateDay:
		return t.Format("Monday")
	default:
		return t.Format("2006-01-02")
	}
}
