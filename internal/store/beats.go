package store

import (
	"context"

	"fullsound/internal/models"

	"github.com/jmoiron/sqlx"
)

const beatColumns = `id, title, slug, artist, price, bpm, musical_key, duration_secs, genre, tags,
	description, image_url, audio_url, demo_audio_url, plays, status, created_at, updated_at`

// CreateBeat inserts a catalog beat
func (q *queries) CreateBeat(ctx context.Context, beat *models.Beat) error {
	query := `
		INSERT INTO beats (title, slug, artist, price, bpm, musical_key, duration_secs, genre, tags,
			description, image_url, audio_url, demo_audio_url, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, plays, created_at, updated_at`

	row := q.db.QueryRowxContext(ctx, query,
		beat.Title, beat.Slug, beat.Artist, beat.Price, beat.BPM, beat.MusicalKey, beat.DurationSecs,
		beat.Genre, beat.Tags, beat.Description, beat.ImageURL, beat.AudioURL, beat.DemoAudioURL, beat.Status)
	return translate(row.Scan(&beat.ID, &beat.Plays, &beat.CreatedAt, &beat.UpdatedAt))
}

// GetBeatByID retrieves a beat by ID
func (q *queries) GetBeatByID(ctx context.Context, id int64) (*models.Beat, error) {
	var beat models.Beat
	if err := q.get(ctx, &beat, "SELECT "+beatColumns+" FROM beats WHERE id = $1", id); err != nil {
		return nil, err
	}
	return &beat, nil
}

// GetBeatForUpdate retrieves a beat and locks its row until the transaction ends
func (q *queries) GetBeatForUpdate(ctx context.Context, id int64) (*models.Beat, error) {
	var beat models.Beat
	if err := q.get(ctx, &beat, "SELECT "+beatColumns+" FROM beats WHERE id = $1 FOR UPDATE", id); err != nil {
		return nil, err
	}
	return &beat, nil
}

// GetBeatBySlug retrieves a beat by its URL slug
func (q *queries) GetBeatBySlug(ctx context.Context, slug string) (*models.Beat, error) {
	var beat models.Beat
	if err := q.get(ctx, &beat, "SELECT "+beatColumns+" FROM beats WHERE slug = $1", slug); err != nil {
		return nil, err
	}
	return &beat, nil
}

// GetBeatsByIDs retrieves multiple beats by IDs
func (q *queries) GetBeatsByIDs(ctx context.Context, ids []int64) ([]models.Beat, error) {
	if len(ids) == 0 {
		return []models.Beat{}, nil
	}

	query, args, err := sqlx.In("SELECT "+beatColumns+" FROM beats WHERE id IN (?) ORDER BY id", ids)
	if err != nil {
		return nil, err
	}
	query = q.db.Rebind(query)

	var beats []models.Beat
	err = q.selectAll(ctx, &beats, query, args...)
	return beats, err
}

// ListBeatsByStatus lists beats in one availability state, newest first
func (q *queries) ListBeatsByStatus(ctx context.Context, status models.BeatStatus) ([]models.Beat, error) {
	var beats []models.Beat
	err := q.selectAll(ctx, &beats,
		"SELECT "+beatColumns+" FROM beats WHERE status = $1 ORDER BY created_at DESC, id DESC", status)
	return beats, err
}

// SlugExists reports whether another beat already uses the slug
func (q *queries) SlugExists(ctx context.Context, slug string, excludeID int64) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM beats WHERE slug = $1 AND id <> $2)", slug, excludeID)
	return exists, err
}

// UpdateBeat rewrites the editable catalog fields of a beat
func (q *queries) UpdateBeat(ctx context.Context, beat *models.Beat) error {
	query := `
		UPDATE beats SET title = $1, slug = $2, artist = $3, price = $4, bpm = $5, musical_key = $6,
			duration_secs = $7, genre = $8, tags = $9, description = $10, image_url = $11,
			audio_url = $12, demo_audio_url = $13, status = $14, updated_at = NOW()
		WHERE id = $15`

	return q.exec(ctx, query,
		beat.Title, beat.Slug, beat.Artist, beat.Price, beat.BPM, beat.MusicalKey, beat.DurationSecs,
		beat.Genre, beat.Tags, beat.Description, beat.ImageURL, beat.AudioURL, beat.DemoAudioURL,
		beat.Status, beat.ID)
}

// UpdateBeatStatus sets the availability of a beat
func (q *queries) UpdateBeatStatus(ctx context.Context, id int64, status models.BeatStatus) error {
	return q.exec(ctx, "UPDATE beats SET status = $1, updated_at = NOW() WHERE id = $2", status, id)
}

// IncrementBeatPlays bumps the play counter
func (q *queries) IncrementBeatPlays(ctx context.Context, id int64) error {
	return q.exec(ctx, "UPDATE beats SET plays = plays + 1 WHERE id = $1", id)
}

// IsBeatReferenced reports whether any order line points at the beat
func (q *queries) IsBeatReferenced(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists, "SELECT EXISTS(SELECT 1 FROM order_items WHERE beat_id = $1)", id)
	return exists, err
}

// IsBeatSoldElsewhere reports whether a COMPLETED order other than orderID holds the beat.
// Callers lock the beat row first so the answer holds until commit.
func (q *queries) IsBeatSoldElsewhere(ctx context.Context, beatID, orderID int64) (bool, error) {
	var exists bool
	err := q.get(ctx, &exists, `
		SELECT EXISTS(
			SELECT 1 FROM order_items oi
			JOIN orders o ON o.id = oi.order_id
			WHERE oi.beat_id = $1 AND oi.order_id <> $2 AND o.status = $3)`,
		beatID, orderID, models.OrderStatusCompleted)
	return exists, err
}

// DeleteBeat removes an unreferenced beat
func (q *queries) DeleteBeat(ctx context.Context, id int64) error {
	return q.exec(ctx, "DELETE FROM beats WHERE id = $1", id)
}
