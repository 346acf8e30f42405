package util

import (
	"fmt"
	"strings"
	"time"
)

// ScanFrequency controls how often the walk-forward loop steps. "B" scans
// every business day; "W-MON" through "W-FRI" scan once a week on the named
// weekday. The codes match the original scan-frequency configuration values.
type ScanFrequency string

const (
	ScanDaily           ScanFrequency = "B"
	ScanWeeklyMonday    ScanFrequency = "W-MON"
	ScanWeeklyTuesday   ScanFrequency = "W-TUE"
	ScanWeeklyWednesday ScanFrequency = "W-WED"
	ScanWeeklyThursday  ScanFrequency = "W-THU"
	ScanWeeklyFriday    ScanFrequency = "W-FRI"
)

var scanWeekdays = map[string]time.Weekday{
	"MON": time.Monday,
	"TUE": time.Tuesday,
	"WED": time.Wednesday,
	"THU": time.Thursday,
	"FRI": time.Friday,
}

// ScanDates returns the ascending sequence of simulated decision dates in
// [start, end] for the given frequency. Dates are normalised to midnight UTC.
// Weekends are never included; exchange holidays are not modelled, and the
// engine treats a scan date with no bar for a ticker as a non-trading day for
// that ticker.
func ScanDates(start, end time.Time, freq ScanFrequency) ([]time.Time, error) {
	start = Midnight(start)
	end = Midnight(end)
	if end.Before(start) {
		return nil, fmt.Errorf("scan range end %s before start %s",
			end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	var dates []time.Time
	switch {
	case freq == ScanDaily:
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if wd := d.Weekday(); wd == time.Saturday || wd == time.Sunday {
				continue
			}
			dates = append(dates, d)
		}
	case strings.HasPrefix(string(freq), "W-"):
		wd, ok := scanWeekdays[strings.TrimPrefix(string(freq), "W-")]
		if !ok {
			return nil, fmt.Errorf("unknown scan frequency %q", freq)
		}
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			if d.Weekday() == wd {
				dates = append(dates, d)
			}
		}
	default:
		return nil, fmt.Errorf("unknown scan frequency %q", freq)
	}
	return dates, nil
}

// Midnight truncates t to 00:00:00 UTC on the same calendar day.
func Midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
