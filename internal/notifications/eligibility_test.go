package notifications

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func neverSent(*time.Location, time.Time) (bool, error) { return false, nil }
func alwaysSent(*time.Location, time.Time) (bool, error) { return true, nil }

func TestEvaluate_UTCUser(t *testing.T) {
	p := pref("UTC", tod(14, 0), "ExponentPushToken[utc]")
	day := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	assert.True(t, ShouldNotifyNow(p, day.Add(tod(14, 5)), neverSent))
	assert.False(t, ShouldNotifyNow(p, day.Add(tod(15, 5)), neverSent))
	assert.False(t, ShouldNotifyNow(p, day.Add(tod(13, 59)), neverSent))
	assert.False(t, ShouldNotifyNow(p, day.Add(tod(14, 30)), alwaysSent))
	assert.True(t, ShouldNotifyNow(p, day.Add(24*time.Hour+tod(14, 5)), neverSent))
}

func TestEvaluate_NewYorkSummer(t *testing.T) {
	ny := mustZone(t, "America/New_York")
	on := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)

	// 09:00 EDT is 13:00 UTC.
	stored := LocalToUTCTimeOfDay(tod(9, 0), ny, on)
	require.Equal(t, tod(13, 0), stored)

	p := pref("America/New_York", stored, "tok")
	d := Evaluator{}.Evaluate(p, on.Add(tod(13, 10)), neverSent)
	assert.True(t, d.Eligible)
	assert.Equal(t, ReasonDue, d.Reason)
	assert.Equal(t, 9, d.LocalTime.Hour())

	d = Evaluator{}.Evaluate(p, on.Add(tod(14, 10)), neverSent)
	assert.False(t, d.Eligible)
	assert.Equal(t, ReasonNotPreferredHr, d.Reason)
}

func TestEvaluate_HalfHourZone(t *testing.T) {
	kolkata := mustZone(t, "Asia/Kolkata")
	on := time.Date(2026, 5, 4, 0, 0, 0, 0, time.UTC)

	// 09:30 IST is 04:00 UTC.
	stored := LocalToUTCTimeOfDay(tod(9, 30), kolkata, on)
	require.Equal(t, tod(4, 0), stored)
	assert.Equal(t, 9, PreferredLocalHour(stored, kolkata, on))

	p := pref("Asia/Kolkata", stored, "tok")
	// 04:10 UTC is 09:40 IST.
	assert.True(t, ShouldNotifyNow(p, on.Add(tod(4, 10)), neverSent))
	// 04:35 UTC is 10:05 IST, outside the local hour even though the UTC hour matches.
	assert.False(t, ShouldNotifyNow(p, on.Add(tod(4, 35)), neverSent))
}

func TestEvaluate_Ineligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 14, 5, 0, 0, time.UTC)

	disabled := pref("UTC", tod(14, 0), "tok")
	disabled.IsEnabled = false
	assert.Equal(t, ReasonDisabled, Evaluator{}.Evaluate(disabled, now, neverSent).Reason)

	noToken := pref("UTC", tod(14, 0), "")
	assert.Equal(t, ReasonNoDeviceToken, Evaluator{}.Evaluate(noToken, now, neverSent).Reason)

	badZone := pref("Mars/Olympus_Mons", tod(14, 0), "tok")
	d := Evaluator{Logger: discardLogger()}.Evaluate(badZone, now, neverSent)
	assert.Equal(t, ReasonInvalidTimezone, d.Reason)
	assert.ErrorIs(t, d.Err, ErrInvalidTimezone)
	assert.True(t, d.skippable())

	checkErr := errors.New("db down")
	d = Evaluator{Logger: discardLogger()}.Evaluate(pref("UTC", tod(14, 0), "tok"), now,
		func(*time.Location, time.Time) (bool, error) { return false, checkErr })
	assert.Equal(t, ReasonCheckFailed, d.Reason)
	assert.ErrorIs(t, d.Err, checkErr)
}

func TestEvaluate_NotPreferredHourIsNotSkipped(t *testing.T) {
	d := Evaluator{}.Evaluate(pref("UTC", tod(9, 0), "tok"), time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC), neverSent)
	assert.False(t, d.skippable())
}

func TestEvaluate_CustomResolver(t *testing.T) {
	calls := 0
	e := Evaluator{Zones: func(name string) (*time.Location, error) {
		calls++
		return time.FixedZone(name, 2*60*60), nil
	}}
	// 12:00 UTC stored, +02:00 zone: preferred local hour is 14.
	d := e.Evaluate(pref("Custom", tod(12, 0), "tok"), time.Date(2026, 3, 10, 12, 15, 0, 0, time.UTC), neverSent)
	assert.True(t, d.Eligible)
	assert.Equal(t, 1, calls)
}

func TestSentOnLocalDay(t *testing.T) {
	tokyo := mustZone(t, "Asia/Tokyo")

	// 14:30 UTC is 23:30 on the 10th in Tokyo; 15:10 UTC is 00:10 on the 11th.
	sent := time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC)
	now := time.Date(2026, 3, 10, 15, 10, 0, 0, time.UTC)
	assert.False(t, SentOnLocalDay([]time.Time{sent}, tokyo, now))
	assert.True(t, SentOnLocalDay([]time.Time{sent}, time.UTC, now))
	assert.False(t, SentOnLocalDay(nil, time.UTC, now))
}
