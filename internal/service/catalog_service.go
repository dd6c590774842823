package service

import (
	"context"
	"fmt"
	"strings"

	"fullsound/internal/apperr"
	"fullsound/internal/models"
	"fullsound/internal/store"
	"fullsound/internal/util"

	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const slugAttempts = 3

// CatalogService manages the beat catalog
type CatalogService struct {
	store  store.Repository
	logger *zap.Logger
}

// NewCatalogService creates a new catalog service
func NewCatalogService(store store.Repository) *CatalogService {
	return &CatalogService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// BeatInput is the editable part of a beat
type BeatInput struct {
	Title        string `json:"title"`
	Artist       string `json:"artist"`
	Price        int64  `json:"price"`
	BPM          int    `json:"bpm"`
	MusicalKey   string `json:"musical_key"`
	DurationSecs int    `json:"duration_secs"`
	Genre        string `json:"genre"`
	Tags         string `json:"tags"`
	Description  string `json:"description"`
	ImageURL     string `json:"image_url"`
	AudioURL     string `json:"audio_url"`
	DemoAudioURL string `json:"demo_audio_url"`
	Status       string `json:"status"`
}

func (in *BeatInput) validate() (models.BeatStatus, error) {
	in.Title = strings.TrimSpace(in.Title)
	if in.Title == "" {
		return "", apperr.Validation("title is required")
	}
	if in.Price <= 0 {
		return "", apperr.Validation("price must be greater than zero")
	}
	if in.BPM < 0 || in.DurationSecs < 0 {
		return "", apperr.Validation("bpm and duration must not be negative")
	}
	if in.Status == "" {
		return models.BeatStatusAvailable, nil
	}
	status, err := models.ParseBeatStatus(in.Status)
	if err != nil {
		return "", apperr.Validation("invalid beat status: %s", in.Status)
	}
	return status, nil
}

func (in *BeatInput) applyTo(beat *models.Beat, status models.BeatStatus) {
	beat.Title = in.Title
	beat.Artist = in.Artist
	beat.Price = in.Price
	beat.BPM = in.BPM
	beat.MusicalKey = in.MusicalKey
	beat.DurationSecs = in.DurationSecs
	beat.Genre = in.Genre
	beat.Tags = in.Tags
	beat.Description = in.Description
	beat.ImageURL = in.ImageURL
	beat.AudioURL = in.AudioURL
	beat.DemoAudioURL = in.DemoAudioURL
	beat.Status = status
}

// CreateBeat adds a beat to the catalog with a unique slug derived from its title
func (cs *CatalogService) CreateBeat(ctx context.Context, in *BeatInput) (*models.Beat, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.CreateBeat")
	defer span.End()

	status, err := in.validate()
	if err != nil {
		return nil, err
	}

	beat := &models.Beat{}
	in.applyTo(beat, status)

	// A concurrent insert can take the slug between the check and the insert
	for attempt := 0; attempt < slugAttempts; attempt++ {
		beat.Slug, err = cs.uniqueSlug(ctx, beat.Title, 0)
		if err != nil {
			return nil, err
		}
		err = cs.store.CreateBeat(ctx, beat)
		if !store.IsUniqueViolation(err, store.ConstraintBeatSlug) {
			break
		}
	}
	if err != nil {
		util.RecordError(span, err)
		return nil, fmt.Errorf("failed to create beat: %w", err)
	}

	cs.logger.Info("Beat created", zap.Int64("beat_id", beat.ID), zap.String("slug", beat.Slug))
	return beat, nil
}

// UpdateBeat replaces the editable fields of a beat; a new title gets a new slug
func (cs *CatalogService) UpdateBeat(ctx context.Context, id int64, in *BeatInput) (*models.Beat, error) {
	ctx, span := util.StartSpan(ctx, "CatalogService.UpdateBeat")
	defer span.End()

	beat, err := cs.store.GetBeatByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "beat", "id", id)
	}

	if in.Status == "" {
		in.Status = string(beat.Status)
	}
	status, err := in.validate()
	if err != nil {
		return nil, err
	}

	titleChanged := beat.Title != in.Title
	in.applyTo(beat, status)
	if titleChanged {
		if beat.Slug, err = cs.uniqueSlug(ctx, beat.Title, beat.ID); err != nil {
			return nil, err
		}
	}

	if err := cs.store.UpdateBeat(ctx, beat); err != nil {
		if store.IsUniqueViolation(err, store.ConstraintBeatSlug) {
			return nil, apperr.Conflict("slug %s is already taken", beat.Slug)
		}
		return nil, notFound(err, "beat", "id", id)
	}
	return beat, nil
}

// uniqueSlug returns slug.Make(title), suffixed -2, -3, ... until no other beat uses it
func (cs *CatalogService) uniqueSlug(ctx context.Context, title string, excludeID int64) (string, error) {
	base := slug.Make(title)
	if base == "" {
		base = "beat"
	}

	candidate := base
	for n := 2; ; n++ {
		taken, err := cs.store.SlugExists(ctx, candidate, excludeID)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, n)
	}
}

// GetBeat retrieves a beat by ID
func (cs *CatalogService) GetBeat(ctx context.Context, id int64) (*models.Beat, error) {
	beat, err := cs.store.GetBeatByID(ctx, id)
	if err != nil {
		return nil, notFound(err, "beat", "id", id)
	}
	return beat, nil
}

// GetBeatBySlug retrieves a beat by slug
func (cs *CatalogService) GetBeatBySlug(ctx context.Context, s string) (*models.Beat, error) {
	beat, err := cs.store.GetBeatBySlug(ctx, s)
	if err != nil {
		return nil, notFound(err, "beat", "slug", s)
	}
	return beat, nil
}

// ListBeats lists the beats on sale, newest first
func (cs *CatalogService) ListBeats(ctx context.Context) ([]models.Beat, error) {
	beats, err := cs.store.ListBeatsByStatus(ctx, models.BeatStatusAvailable)
	if err != nil {
		return nil, fmt.Errorf("list beats: %w", err)
	}
	return beats, nil
}

// DeleteBeat removes a beat no order references
func (cs *CatalogService) DeleteBeat(ctx context.Context, id int64) error {
	beat, err := cs.store.GetBeatByID(ctx, id)
	if err != nil {
		return notFound(err, "beat", "id", id)
	}

	referenced, err := cs.store.IsBeatReferenced(ctx, id)
	if err != nil {
		return fmt.Errorf("check beat references: %w", err)
	}
	if referenced {
		return apperr.Conflict("beat %q is part of existing orders and cannot be deleted", beat.Title)
	}

	if err := cs.store.DeleteBeat(ctx, id); err != nil {
		return notFound(err, "beat", "id", id)
	}
	cs.logger.Info("Beat deleted", zap.Int64("beat_id", id))
	return nil
}

// RecordPlay counts one playback of a beat
func (cs *CatalogService) RecordPlay(ctx context.Context, id int64) error {
	if err := cs.store.IncrementBeatPlays(ctx, id); err != nil {
		return notFound(err, "beat", "id", id)
	}
	return nil
}
