package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"texttones/internal/conversions"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var aggregateColumns = []string{
	"id",
	"email",
	"display_name",
	"photo_url",
	"created_at",
	"total_conversions",
	"total_characters",
	"total_audio_duration",
	"recent_activity",
}

// ActivityRepository persists user aggregates in PostgreSQL, one row per user.
type ActivityRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewActivityRepository creates a new repository.
func NewActivityRepository(db *sql.DB) *ActivityRepository {
	return &ActivityRepository{db: db, now: time.Now}
}

// Record appends entry to the user's history within a transaction. The row is
// created if missing and locked FOR UPDATE, so concurrent records for the same
// user are applied one after another.
func (r *ActivityRepository) Record(ctx context.Context, userID string, entry conversions.ActivityEntry) (conversions.UserAggregate, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := r.now().UTC()

	insert, args, err := psql.Insert("users").
		Columns("id", "created_at", "updated_at").
		Values(userID, now, now).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("build insert user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("insert user: %w", err)
	}

	query, args, err := psql.Select(aggregateColumns...).
		From("users").
		Where(sq.Eq{"id": userID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("build select user: %w", err)
	}
	current, err := scanAggregate(tx.QueryRowContext(ctx, query, args...))
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("lock user: %w", err)
	}

	next := conversions.ApplyEntry(current, entry)
	activityJSON, err := json.Marshal(next.RecentActivity)
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("marshal recent activity: %w", err)
	}

	update, args, err := psql.Update("users").
		Set("total_conversions", next.TotalConversions).
		Set("total_characters", next.TotalCharacters).
		Set("total_audio_duration", next.TotalAudioDurationSeconds).
		Set("recent_activity", activityJSON).
		Set("updated_at", now).
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("build update user: %w", err)
	}
	if _, err := tx.ExecContext(ctx, update, args...); err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("update user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("commit tx: %w", err)
	}
	return next, nil
}

// Fetch returns the user's aggregate, or a zero aggregate if the user has none.
func (r *ActivityRepository) Fetch(ctx context.Context, userID string) (conversions.UserAggregate, error) {
	query, args, err := psql.Select(aggregateColumns...).
		From("users").
		Where(sq.Eq{"id": userID}).
		ToSql()
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("build select user: %w", err)
	}

	agg, err := scanAggregate(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return conversions.UserAggregate{UserID: userID, RecentActivity: []conversions.ActivityEntry{}}, nil
		}
		return conversions.UserAggregate{}, fmt.Errorf("select user: %w", err)
	}
	return agg, nil
}

// EnsureProfile creates the user's row on first sign-in. Profile fields of a
// row created implicitly by Record are filled in; an existing profile is kept.
func (r *ActivityRepository) EnsureProfile(ctx context.Context, p conversions.Principal) (conversions.UserAggregate, error) {
	profile := conversions.NewProfile(p, r.now())

	insert, args, err := psql.Insert("users").
		Columns("id", "email", "display_name", "photo_url", "created_at", "updated_at").
		Values(profile.UserID, profile.Email, profile.DisplayName, profile.PhotoURL, profile.CreatedAt, profile.CreatedAt).
		Suffix(`ON CONFLICT (id) DO UPDATE
			SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, photo_url = EXCLUDED.photo_url
			WHERE users.email = ''`).
		ToSql()
	if err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("build insert profile: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, insert, args...); err != nil {
		return conversions.UserAggregate{}, fmt.Errorf("insert profile: %w", err)
	}

	return r.Fetch(ctx, p.UserID)
}

func scanAggregate(row *sql.Row) (conversions.UserAggregate, error) {
	var (
		agg          conversions.UserAggregate
		activityJSON []byte
	)
	if err := row.Scan(
		&agg.UserID,
		&agg.Email,
		&agg.DisplayName,
		&agg.PhotoURL,
		&agg.CreatedAt,
		&agg.TotalConversions,
		&agg.TotalCharacters,
		&agg.TotalAudioDurationSeconds,
		&activityJSON,
	); err != nil {
		return conversions.UserAggregate{}, err
	}
	if len(activityJSON) > 0 {
		if err := json.Unmarshal(activityJSON, &agg.RecentActivity); err != nil {
			return conversions.UserAggregate{}, fmt.Errorf("unmarshal recent activity: %w", err)
		}
	}
	if agg.RecentActivity == nil {
		agg.RecentActivity = []conversions.ActivityEntry{}
	}
	return agg, nil
}
