package income

import "time"

// Preset names a relative date range anchored at the caller's current day.
type Preset string

const (
	PresetToday     Preset = "today"
	PresetYesterday Preset = "yesterday"
	PresetWeek      Preset = "week"
	PresetMonth     Preset = "month"
)

// PresetRange resolves a preset to inclusive [start, end] day strings relative
// to the anchor's calendar day. Weeks run Monday through Sunday. The month
// preset covers the first through the last day of the anchor's month.
// Unknown presets report ok=false.
func PresetRange(preset Preset, anchor time.Time) (start, end string, ok bool) {
	const layout = "2006-01-02"
	switch preset {
	case PresetToday:
		d := anchor.Format(layout)
		return d, d, true
	case PresetYesterday:
		d := anchor.AddDate(0, 0, -1).Format(layout)
		return d, d, true
	case PresetWeek:
		back := (int(anchor.Weekday()) + 6) % 7
		monday := anchor.AddDate(0, 0, -back)
		return monday.Format(layout), monday.AddDate(0, 0, 6).Format(layout), true
	case PresetMonth:
		first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
		last := time.Date(anchor.Year(), anchor.Month()+1, 0, 0, 0, 0, 0, anchor.Location())
		return first.Format(layout), last.Format(layout), true
	default:
		return "", "", false
	}
}
