package worklog

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	ClassDayNormal     = "DAY_NORMAL"
	ClassDayOvertime   = "DAY_OVERTIME"
	ClassNightNormal   = "NIGHT_NORMAL"
	ClassNightOvertime = "NIGHT_OVERTIME"
	ClassUnclassified  = "UNCLASSIFIED"
)

// Windows holds the hour-of-day boundaries for session classification. All
// windows are half-open [start, end) and may wrap midnight. The canonical
// defaults tile the clock as: DAY_NORMAL 08-17, gap 17-18, DAY_OVERTIME
// 18-20, NIGHT_NORMAL 20-05, gap 05-06, NIGHT_OVERTIME 06-08.
type Windows struct {
	DayStartHour           int `yaml:"day_start_hour"`
	DayEndHour             int `yaml:"day_end_hour"`
	DayOvertimeStartHour   int `yaml:"day_overtime_start_hour"`
	DayOvertimeEndHour     int `yaml:"day_overtime_end_hour"`
	NightStartHour         int `yaml:"night_start_hour"`
	NightEndHour           int `yaml:"night_end_hour"`
	NightOvertimeStartHour int `yaml:"night_overtime_start_hour"`
	NightOvertimeEndHour   int `yaml:"night_overtime_end_hour"`
	MinSessionMinutes      int `yaml:"min_session_minutes"`
}

func DefaultWindows() Windows {
	return Windows{
		DayStartHour:           8,
		DayEndHour:             17,
		DayOvertimeStartHour:   18,
		DayOvertimeEndHour:     20,
		NightStartHour:         20,
		NightEndHour:           5,
		NightOvertimeStartHour: 6,
		NightOvertimeEndHour:   8,
		MinSessionMinutes:      5,
	}
}

type windowsFile struct {
	Windows Windows `yaml:"windows"`
}

func LoadWindowsFromEnv() (Windows, error) {
	path := strings.TrimSpace(os.Getenv("ROSTERD_WINDOWS_FILE"))
	if path == "" {
		return DefaultWindows(), nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Windows{}, fmt.Errorf("read windows file: %w", err)
	}
	var f windowsFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return Windows{}, fmt.Errorf("parse windows file: %w", err)
	}
	w := f.Windows
	if err := w.Validate(); err != nil {
		return Windows{}, err
	}
	return w, nil
}

func (w Windows) Validate() error {
	hours := map[string]int{
		"day_start_hour":            w.DayStartHour,
		"day_end_hour":              w.DayEndHour,
		"day_overtime_start_hour":   w.DayOvertimeStartHour,
		"day_overtime_end_hour":     w.DayOvertimeEndHour,
		"night_start_hour":          w.NightStartHour,
		"night_end_hour":            w.NightEndHour,
		"night_overtime_start_hour": w.NightOvertimeStartHour,
		"night_overtime_end_hour":   w.NightOvertimeEndHour,
	}
	for name, h := range hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("windows: %s %d out of range [0,23]", name, h)
		}
	}
	if w.MinSessionMinutes < 0 {
		return fmt.Errorf("windows: min_session_minutes must not be negative")
	}
	return nil
}

// Classify buckets a closed session by the hour of its midpoint. Sessions
// shorter than the minimum are never classified, whatever the hour.
func (w Windows) Classify(midpointHour, durationMinutes int) string {
	if durationMinutes < w.MinSessionMinutes {
		return ClassUnclassified
	}
	switch {
	case hourWithin(midpointHour, w.DayStartHour, w.DayEndHour):
		return ClassDayNormal
	case hourWithin(midpointHour, w.NightStartHour, w.NightEndHour):
		return ClassNightNormal
	case hourWithin(midpointHour, w.DayOvertimeStartHour, w.DayOvertimeEndHour):
		return ClassDayOvertime
	case hourWithin(midpointHour, w.NightOvertimeStartHour, w.NightOvertimeEndHour):
		return ClassNightOvertime
	default:
		return ClassUnclassified
	}
}

// hourWithin reports whether h falls in the half-open window [start, end),
// wrapping midnight when start > end.
func hourWithin(h, start, end int) bool {
	if start == end {
		return false
	}
	if start < end {
		return h >= start && h < end
	}
	return h >= start || h < end
}
