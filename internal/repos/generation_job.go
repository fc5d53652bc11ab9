package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

type GenerationJobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *domain.GenerationJob) (*domain.GenerationJob, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GenerationJob, error)
	GetLatestByEntity(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*domain.GenerationJob, error)
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.GenerationJob, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatuses []string, updates map[string]interface{}) (bool, error)
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
	FailExhausted(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (int64, error)
}

type generationJobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewGenerationJobRepo(db *gorm.DB, baseLog *logger.Logger) GenerationJobRepo {
	return &generationJobRepo{db: db, log: baseLog.With("repo", "GenerationJobRepo")}
}

func (r *generationJobRepo) Create(ctx context.Context, tx *gorm.DB, job *domain.GenerationJob) (*domain.GenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if err := transaction.WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *generationJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil, nil
	}
	var job domain.GenerationJob
	err := transaction.WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *generationJobRepo) GetLatestByEntity(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*domain.GenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if ownerUserID == uuid.Nil || entityID == uuid.Nil || entityType == "" || jobType == "" {
		return nil, nil
	}
	var job domain.GenerationJob
	err := transaction.WithContext(ctx).
		Where("owner_user_id = ? AND entity_type = ? AND entity_id = ? AND job_type = ?",
			ownerUserID, entityType, entityID, jobType).
		Order("created_at DESC").
		Limit(1).
		Find(&job).Error
	if err != nil {
		return nil, err
	}
	if job.ID == uuid.Nil {
		return nil, nil
	}
	return &job, nil
}

// ClaimNextRunnable picks the oldest job that is queued, retryable-failed, or
// running with a stale heartbeat, and atomically moves it to running. SKIP
// LOCKED keeps concurrent workers from fighting over the same row.
func (r *generationJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.GenerationJob, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	retryCutoff := now.Add(-retryDelay)
	staleCutoff := now.Add(-staleRunning)
	var claimed *domain.GenerationJob
	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var job domain.GenerationJob
		q := txx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where(`
				(
					status = ?
					OR (
						status = ?
						AND attempts < ?
						AND (last_error_at IS NULL OR last_error_at < ?)
					)
					OR (
						status = ?
						AND attempts < ?
						AND heartbeat_at IS NOT NULL
						AND heartbeat_at < ?
					)
				)
			`, domain.JobStatusQueued, domain.JobStatusFailed, maxAttempts, retryCutoff,
				domain.JobStatusRunning, maxAttempts, staleCutoff).
			Order("created_at ASC")
		qErr := q.First(&job).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}
		uErr := txx.Model(&domain.GenerationJob{}).
			Where("id = ?", job.ID).
			Updates(map[string]interface{}{
				"status":       domain.JobStatusRunning,
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *generationJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]interface{}{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// UpdateFieldsUnlessStatus applies updates only when the row's status is not
// in excludedStatuses, reporting whether a row was changed. This is the guard
// that keeps a terminal job from being overwritten by a late writer.
func (r *generationJobRepo) UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatuses []string, updates map[string]interface{}) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil || len(updates) == 0 {
		return false, nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	q := transaction.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ?", id)
	if len(excludedStatuses) > 0 {
		q = q.Where("status NOT IN ?", excludedStatuses)
	}
	res := q.Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *generationJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("id = ? AND status = ?", id, domain.JobStatusRunning).
		Updates(map[string]interface{}{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}

// FailExhausted terminally fails running jobs whose heartbeat went stale
// after they already burned their attempt budget. The claim query skips
// these, so without the sweep they would sit in "running" forever.
func (r *generationJobRepo) FailExhausted(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	now := time.Now()
	staleCutoff := now.Add(-staleRunning)
	res := transaction.WithContext(ctx).
		Model(&domain.GenerationJob{}).
		Where("status = ? AND attempts >= ? AND heartbeat_at IS NOT NULL AND heartbeat_at < ?",
			domain.JobStatusRunning, maxAttempts, staleCutoff).
		Updates(map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"stage":         domain.StageError,
			"error":         "任务超时：工作进程失联且重试次数已耗尽",
			"last_error_at": now,
			"locked_at":     nil,
			"updated_at":    now,
		})
	return res.RowsAffected, res.Error
}
