package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

// Long-poll bounds: clients may ask for any wait, the server clamps it and
// re-checks on a fixed tick.
const (
	maxLongPollWait  = 25 * time.Second
	longPollInterval = 1 * time.Second
)

type JobService interface {
	Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*domain.GenerationJob, error)
	GetByIDForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*domain.GenerationJob, error)
	GetLatestForEntity(ctx context.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*domain.GenerationJob, error)
	WaitForChange(ctx context.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string, since time.Time, wait time.Duration) (*domain.GenerationJob, error)
}

type jobService struct {
	db     *gorm.DB
	log    *logger.Logger
	repo   repos.GenerationJobRepo
	notify JobNotifier
	rdb    *redis.Client
}

// NewJobService builds the job service. rdb may be nil; long-polls then rely
// on the tick alone.
func NewJobService(db *gorm.DB, baseLog *logger.Logger, repo repos.GenerationJobRepo, notify JobNotifier, rdb *redis.Client) JobService {
	return &jobService{
		db:     db,
		log:    baseLog.With("service", "JobService"),
		repo:   repo,
		notify: notify,
		rdb:    rdb,
	}
}

// Enqueue creates a queued job unless the same entity already has one queued
// or running; generation is expensive and concurrent runs on one entity would
// race over the same workspace.
func (s *jobService) Enqueue(ctx context.Context, ownerUserID uuid.UUID, jobType, entityType string, entityID uuid.UUID, payload map[string]any) (*domain.GenerationJob, error) {
	if ownerUserID == uuid.Nil {
		return nil, fmt.Errorf("missing owner user id")
	}
	if jobType == "" || entityType == "" || entityID == uuid.Nil {
		return nil, fmt.Errorf("missing job parameters")
	}

	existing, err := s.repo.GetLatestByEntity(ctx, s.db, ownerUserID, entityType, entityID, jobType)
	if err != nil {
		return nil, err
	}
	if existing != nil && !existing.Terminal() {
		return existing, nil
	}

	var payloadJSON datatypes.JSON
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode job payload: %w", err)
		}
		payloadJSON = datatypes.JSON(b)
	}

	job := &domain.GenerationJob{
		OwnerUserID: ownerUserID,
		JobType:     jobType,
		EntityType:  entityType,
		EntityID:    entityID,
		Status:      domain.JobStatusQueued,
		Stage:       "queued",
		Message:     "任务已排队",
		Payload:     payloadJSON,
	}
	if _, err := s.repo.Create(ctx, s.db, job); err != nil {
		return nil, err
	}
	s.notify.JobCreated(ownerUserID, job)
	return job, nil
}

func (s *jobService) GetByIDForOwner(ctx context.Context, ownerUserID, jobID uuid.UUID) (*domain.GenerationJob, error) {
	job, err := s.repo.GetByID(ctx, s.db, jobID)
	if err != nil {
		return nil, err
	}
	if job == nil || job.OwnerUserID != ownerUserID {
		return nil, nil
	}
	return job, nil
}

func (s *jobService) GetLatestForEntity(ctx context.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*domain.GenerationJob, error) {
	return s.repo.GetLatestByEntity(ctx, s.db, ownerUserID, entityType, entityID, jobType)
}

// WaitForChange long-polls the latest job for an entity: it returns as soon
// as the job has been updated after `since` or reaches a terminal state, and
// otherwise after the clamped wait with the current snapshot. When Redis is
// configured, job events published by the workers wake the loop early instead
// of waiting out the next tick.
func (s *jobService) WaitForChange(ctx context.Context, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string, since time.Time, wait time.Duration) (*domain.GenerationJob, error) {
	if wait <= 0 {
		return s.GetLatestForEntity(ctx, ownerUserID, entityType, entityID, jobType)
	}
	if wait > maxLongPollWait {
		wait = maxLongPollWait
	}
	deadline := time.Now().Add(wait)

	ticker := time.NewTicker(longPollInterval)
	defer ticker.Stop()

	// A nil wake channel blocks forever in the select, so the tick path alone
	// drives the loop when Redis is absent.
	var wake <-chan *redis.Message
	if s.rdb != nil {
		sub := s.rdb.Subscribe(ctx, jobEventsChannel)
		defer sub.Close()
		wake = sub.Channel()
	}

	for {
		job, err := s.repo.GetLatestByEntity(ctx, s.db, ownerUserID, entityType, entityID, jobType)
		if err != nil {
			return nil, err
		}
		if job != nil {
			if job.Terminal() || job.UpdatedAt.After(since) {
				return job, nil
			}
		}
		if time.Now().After(deadline) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, nil
		case <-ticker.C:
		case _, ok := <-wake:
			// Events are not filtered by owner here; the re-query above is
			// the source of truth and a spurious wake only costs one read.
			if !ok {
				wake = nil
			}
		}
	}
}
