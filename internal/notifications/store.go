package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wellnessapp/notification-service/internal/tips"
)

// Store is the Postgres-backed preference store, tip catalog and delivery
// log. Every method runs on its own short-lived pool connection.
type Store struct {
	pool            *pgxpool.Pool
	tipRepeatWindow time.Duration
	logger          *slog.Logger
}

// NewStore creates a Store. Tips sent to a user within tipRepeatWindow are
// not picked again while other tips remain.
func NewStore(pool *pgxpool.Pool, tipRepeatWindow time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, tipRepeatWindow: tipRepeatWindow, logger: logger}
}

// --------------------------------------------------------------------------
// Preferences
// --------------------------------------------------------------------------

// PreferenceInput is an upsert request. A nil DeviceToken leaves the stored
// token unchanged.
type PreferenceInput struct {
	UserID           uuid.UUID
	IsEnabled        bool
	PreferredTimeUTC time.Duration
	Timezone         string
	DeviceToken      *string
}

// Validate checks the input before it reaches the database.
func (in PreferenceInput) Validate() error {
	if in.UserID == uuid.Nil {
		return fmt.Errorf("user id is required")
	}
	if !ValidTimeOfDay(in.PreferredTimeUTC) {
		return fmt.Errorf("%w: %s out of range", ErrInvalidTime, in.PreferredTimeUTC)
	}
	if strings.TrimSpace(in.Timezone) == "" {
		return fmt.Errorf("%w: timezone cannot be empty", ErrInvalidTimezone)
	}
	if _, err := LoadZone(in.Timezone); err != nil {
		return err
	}
	if in.DeviceToken != nil && strings.TrimSpace(*in.DeviceToken) == "" {
		return ErrEmptyDeviceToken
	}
	return nil
}

const preferenceColumns = "user_id, is_enabled, preferred_time_utc, timezone, device_token, created_at, updated_at"

// GetPreferences returns nil without error when the user has no row.
func (s *Store) GetPreferences(ctx context.Context, userID uuid.UUID) (*Preference, error) {
	p, err := scanPreference(s.pool.QueryRow(ctx, "get_user_preferences", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}
	return &p, nil
}

// UpsertPreferences creates or updates the user's row.
func (s *Store) UpsertPreferences(ctx context.Context, in PreferenceInput) (*Preference, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	p, err := scanPreference(s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, is_enabled, preferred_time_utc, timezone, device_token)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO UPDATE
		SET is_enabled = EXCLUDED.is_enabled,
		    preferred_time_utc = EXCLUDED.preferred_time_utc,
		    timezone = EXCLUDED.timezone,
		    device_token = COALESCE(EXCLUDED.device_token, notification_preferences.device_token),
		    updated_at = NOW()
		RETURNING `+preferenceColumns,
		in.UserID, in.IsEnabled, timeOfDayParam(in.PreferredTimeUTC), in.Timezone, in.DeviceToken,
	))
	if err != nil {
		return nil, fmt.Errorf("upsert preferences: %w", err)
	}
	s.logger.Info("Preferences saved", "user_id", in.UserID, "enabled", in.IsEnabled,
		"preferred_time_utc", FormatTimeOfDay(in.PreferredTimeUTC), "timezone", in.Timezone)
	return &p, nil
}

// RegisterDeviceToken stores the token, creating a default preference row
// (enabled, 09:00 UTC, timezone UTC) when none exists.
func (s *Store) RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) (*Preference, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrEmptyDeviceToken
	}

	p, err := scanPreference(s.pool.QueryRow(ctx, `
		INSERT INTO notification_preferences (user_id, device_token)
		VALUES ($1, $2)
		ON CONFLICT (user_id) DO UPDATE
		SET device_token = EXCLUDED.device_token, updated_at = NOW()
		RETURNING `+preferenceColumns,
		userID, token,
	))
	if err != nil {
		return nil, fmt.Errorf("register device token: %w", err)
	}
	s.logger.Info("Device token registered", "user_id", userID)
	return &p, nil
}

// ListNotifiable returns every enabled preference with a device token.
func (s *Store) ListNotifiable(ctx context.Context) ([]Preference, error) {
	rows, err := s.pool.Query(ctx, "list_notifiable_users")
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	defer rows.Close()

	var prefs []Preference
	for rows.Next() {
		p, err := scanPreference(rows)
		if err != nil {
			return nil, fmt.Errorf("scan preference: %w", err)
		}
		prefs = append(prefs, p)
	}
	return prefs, rows.Err()
}

func scanPreference(row pgx.Row) (Preference, error) {
	var (
		p     Preference
		tod   pgtype.Time
		token *string
	)
	if err := row.Scan(&p.UserID, &p.IsEnabled, &tod, &p.Timezone, &token, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return Preference{}, err
	}
	if tod.Valid {
		p.PreferredTimeUTC = time.Duration(tod.Microseconds) * time.Microsecond
	}
	if token != nil {
		p.DeviceToken = *token
	}
	return p, nil
}

func timeOfDayParam(d time.Duration) pgtype.Time {
	return pgtype.Time{Microseconds: d.Microseconds(), Valid: true}
}

// --------------------------------------------------------------------------
// Tips
// --------------------------------------------------------------------------

// GetRandomTip picks a tip the user has not been sent within the repeat
// window before nowUTC, falling back to any tip. Returns nil when the
// catalog is empty.
func (s *Store) GetRandomTip(ctx context.Context, userID uuid.UUID, nowUTC time.Time) (*Tip, error) {
	since := nowUTC.UTC().Add(-s.tipRepeatWindow)
	tip, err := scanTip(s.pool.QueryRow(ctx, "random_tip_excluding_recent", userID, since))
	if err == nil {
		return &tip, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("random tip: %w", err)
	}

	tip, err = scanTip(s.pool.QueryRow(ctx, "random_tip_any"))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("random tip fallback: %w", err)
	}
	s.logger.Debug("All tips sent recently; repeating", "user_id", userID, "tip_id", tip.ID)
	return &tip, nil
}

// GetTip returns nil without error for an unknown id.
func (s *Store) GetTip(ctx context.Context, id int) (*Tip, error) {
	tip, err := scanTip(s.pool.QueryRow(ctx, "tip_by_id", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tip: %w", err)
	}
	return &tip, nil
}

// SeedTips inserts catalog entries, skipping ones whose content exists.
func (s *Store) SeedTips(ctx context.Context, entries []tips.Tip) (int, error) {
	batch := &pgx.Batch{}
	for _, t := range entries {
		batch.Queue(`INSERT INTO wellness_tips (content, category) VALUES ($1, $2)
			ON CONFLICT (content) DO NOTHING`, t.Content, t.Category)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for i := range entries {
		tag, err := br.Exec()
		if err != nil {
			return inserted, fmt.Errorf("seed tip %d: %w", i, err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

func scanTip(row pgx.Row) (Tip, error) {
	var t Tip
	err := row.Scan(&t.ID, &t.Content, &t.Category, &t.CreatedAt)
	return t, err
}

// --------------------------------------------------------------------------
// Delivery log
// --------------------------------------------------------------------------

// LogAttempt appends one row and returns its id. A zero SentAt is stamped
// with the current time.
func (s *Store) LogAttempt(ctx context.Context, a Attempt) (int64, error) {
	if a.SentAt.IsZero() {
		a.SentAt = time.Now().UTC()
	}
	var id int64
	err := s.pool.QueryRow(ctx, "log_notification_attempt",
		a.UserID, a.TipID, a.SentAt.UTC(), string(a.Status),
		nullable(a.ErrorMessage), nullable(a.DeviceToken),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("log notification attempt: %w", err)
	}
	return id, nil
}

// HasSentToday reads the user's recent sent rows and compares their local
// calendar dates in loc against nowUTC's.
func (s *Store) HasSentToday(ctx context.Context, userID uuid.UUID, loc *time.Location, nowUTC time.Time) (bool, error) {
	rows, err := s.pool.Query(ctx, "recent_sent_times", userID, nowUTC.UTC().Add(-sentLookback))
	if err != nil {
		return false, fmt.Errorf("recent sent times: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return false, fmt.Errorf("scan sent_at: %w", err)
		}
		times = append(times, t)
	}
	if err := rows.Err(); err != nil {
		return false, err
	}
	return SentOnLocalDay(times, loc, nowUTC), nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
