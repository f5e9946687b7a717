package notifications

import (
	"log/slog"
	"time"
)

// Reason explains an eligibility decision.
type Reason string

const (
	ReasonDue             Reason = "due"
	ReasonDisabled        Reason = "disabled"
	ReasonNoDeviceToken   Reason = "no_device_token"
	ReasonInvalidTimezone Reason = "invalid_timezone"
	ReasonNotPreferredHr  Reason = "not_preferred_hour"
	ReasonAlreadySent     Reason = "already_sent_today"
	ReasonCheckFailed     Reason = "sent_today_check_failed"
)

// Decision is the evaluator's verdict for one user at one instant.
type Decision struct {
	Eligible  bool
	Reason    Reason
	Location  *time.Location
	LocalTime time.Time
	Err       error
}

// SentTodayFunc reports whether the user already has a sent row on the local
// calendar date of nowUTC in loc.
type SentTodayFunc func(loc *time.Location, nowUTC time.Time) (bool, error)

// Evaluator decides whether a preference is due. Zones defaults to LoadZone.
type Evaluator struct {
	Zones  ZoneResolver
	Logger *slog.Logger
}

// ShouldNotifyNow is Evaluate with the default evaluator, reduced to a bool.
func ShouldNotifyNow(p Preference, nowUTC time.Time, sentToday SentTodayFunc) bool {
	return Evaluator{}.Evaluate(p, nowUTC, sentToday).Eligible
}

// Evaluate never panics or returns an error; failures become ineligible
// decisions carrying the cause.
//
// Only the hour is compared: a user whose preferred time is 09:30 local is
// due for the whole 09:00 to 09:59 local hour.
func (e Evaluator) Evaluate(p Preference, nowUTC time.Time, sentToday SentTodayFunc) Decision {
	if !p.IsEnabled {
		return Decision{Reason: ReasonDisabled}
	}
	if p.DeviceToken == "" {
		return Decision{Reason: ReasonNoDeviceToken}
	}

	zones := e.Zones
	if zones == nil {
		zones = LoadZone
	}
	loc, err := zones(p.Timezone)
	if err != nil {
		e.logger().Warn("Unknown timezone; user not eligible",
			"user_id", p.UserID, "timezone", p.Timezone, "error", err)
		return Decision{Reason: ReasonInvalidTimezone, Err: err}
	}

	nowUTC = nowUTC.UTC()
	local := nowUTC.In(loc)
	d := Decision{Location: loc, LocalTime: local}

	if local.Hour() != PreferredLocalHour(p.PreferredTimeUTC, loc, nowUTC) {
		d.Reason = ReasonNotPreferredHr
		return d
	}

	if sentToday != nil {
		sent, err := sentToday(loc, nowUTC)
		if err != nil {
			e.logger().Error("Sent-today check failed; user not eligible",
				"user_id", p.UserID, "error", err)
			d.Reason, d.Err = ReasonCheckFailed, err
			return d
		}
		if sent {
			d.Reason = ReasonAlreadySent
			return d
		}
	}

	d.Eligible, d.Reason = true, ReasonDue
	return d
}

// PreferredLocalHour maps the stored UTC time of day back into loc using the
// zone's offset on nowUTC's date.
func PreferredLocalHour(preferredUTC time.Duration, loc *time.Location, nowUTC time.Time) int {
	y, m, d := nowUTC.UTC().Date()
	anchor := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Add(preferredUTC)
	return anchor.In(loc).Hour()
}

// SentOnLocalDay reports whether any of sentTimes falls on nowUTC's calendar
// date in loc.
func SentOnLocalDay(sentTimes []time.Time, loc *time.Location, nowUTC time.Time) bool {
	ny, nm, nd := nowUTC.In(loc).Date()
	for _, t := range sentTimes {
		y, m, d := t.In(loc).Date()
		if y == ny && m == nm && d == nd {
			return true
		}
	}
	return false
}

// skippable reports whether a non-eligible decision counts toward the cycle's
// skipped counter. Users outside their hour are simply not due.
func (d Decision) skippable() bool {
	switch d.Reason {
	case ReasonAlreadySent, ReasonInvalidTimezone, ReasonCheckFailed:
		return true
	}
	return false
}

func (e Evaluator) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}
