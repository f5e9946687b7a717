package notifications

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// ParseTimeOfDay parses "HH:MM:SS" or "HH:MM" into an offset from midnight.
func ParseTimeOfDay(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	var h, m, sec int
	var err error
	switch strings.Count(s, ":") {
	case 2:
		_, err = fmt.Sscanf(s, "%d:%d:%d", &h, &m, &sec)
	case 1:
		_, err = fmt.Sscanf(s, "%d:%d", &h, &m)
	default:
		err = fmt.Errorf("expected HH:MM:SS")
	}
	if err != nil {
		return 0, fmt.Errorf("%w %q: %v", ErrInvalidTime, s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 || sec < 0 || sec > 59 {
		return 0, fmt.Errorf("%w %q: out of range", ErrInvalidTime, s)
	}
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(sec)*time.Second, nil
}

// FormatTimeOfDay renders an offset from midnight as HH:MM:SS.
func FormatTimeOfDay(d time.Duration) string {
	d = d.Truncate(time.Second)
	h := int(d / time.Hour)
	m := int(d % time.Hour / time.Minute)
	s := int(d % time.Minute / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// ValidTimeOfDay reports whether d lies in 00:00:00 to 23:59:59.
func ValidTimeOfDay(d time.Duration) bool {
	return d >= 0 && d < 24*time.Hour
}

// ZoneResolver turns an IANA zone name into a location.
type ZoneResolver func(name string) (*time.Location, error)

var zoneCache sync.Map // name → *time.Location

// LoadZone resolves IANA names through the tz database, caching results.
// "Local" is rejected so evaluation never depends on the host's zone; an
// empty name means UTC.
func LoadZone(name string) (*time.Location, error) {
	if name == "" || name == "UTC" {
		return time.UTC, nil
	}
	if name == "Local" {
		return nil, fmt.Errorf("%w %q: host-local zone not allowed", ErrInvalidTimezone, name)
	}
	if loc, ok := zoneCache.Load(name); ok {
		return loc.(*time.Location), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidTimezone, name, err)
	}
	zoneCache.Store(name, loc)
	return loc, nil
}

// LocalToUTCTimeOfDay converts a local wall-clock time of day on the given
// date in loc into the equivalent UTC time of day. Used when saving
// preferences.
func LocalToUTCTimeOfDay(local time.Duration, loc *time.Location, on time.Time) time.Duration {
	y, mo, d := on.In(loc).Date()
	instant := time.Date(y, mo, d, 0, 0, 0, 0, loc).Add(local).UTC()
	return sinceMidnight(instant)
}

func sinceMidnight(t time.Time) time.Duration {
	h, m, s := t.Clock()
	return time.Duration(h)*time.Hour + time.Duration(m)*time.Minute + time.Duration(s)*time.Second
}
