package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
)

type memJobRepo struct {
	mu    sync.Mutex
	job   *domain.GenerationJob
	polls int
	// onPoll runs under the lock before each GetLatestByEntity returns, so a
	// test can mutate the job partway through a long-poll.
	onPoll func(polls int, job *domain.GenerationJob)
}

func (r *memJobRepo) Create(ctx context.Context, tx *gorm.DB, job *domain.GenerationJob) (*domain.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	job.CreatedAt = time.Now()
	job.UpdatedAt = job.CreatedAt
	r.job = job
	return job, nil
}

func (r *memJobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*domain.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.job != nil && r.job.ID == id {
		copied := *r.job
		return &copied, nil
	}
	return nil, nil
}

func (r *memJobRepo) GetLatestByEntity(ctx context.Context, tx *gorm.DB, ownerUserID uuid.UUID, entityType string, entityID uuid.UUID, jobType string) (*domain.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.polls++
	if r.onPoll != nil {
		r.onPoll(r.polls, r.job)
	}
	if r.job == nil {
		return nil, nil
	}
	copied := *r.job
	return &copied, nil
}

func (r *memJobRepo) ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, retryDelay, staleRunning time.Duration) (*domain.GenerationJob, error) {
	return nil, nil
}

func (r *memJobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	return nil
}

func (r *memJobRepo) UpdateFieldsUnlessStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, excludedStatuses []string, updates map[string]interface{}) (bool, error) {
	return true, nil
}

func (r *memJobRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error { return nil }

func (r *memJobRepo) FailExhausted(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (int64, error) {
	return 0, nil
}

type nopNotifier struct{}

func (nopNotifier) JobCreated(uuid.UUID, *domain.GenerationJob) {}
func (nopNotifier) JobProgress(uuid.UUID, *domain.GenerationJob, string, int, string) {
}
func (nopNotifier) JobFailed(uuid.UUID, *domain.GenerationJob, string, string) {}
func (nopNotifier) JobDone(uuid.UUID, *domain.GenerationJob)                   {}

func runningJob(owner uuid.UUID, entityID uuid.UUID, updatedAt time.Time) *domain.GenerationJob {
	return &domain.GenerationJob{
		ID:          uuid.New(),
		OwnerUserID: owner,
		JobType:     domain.JobTypeLessonPlanBuild,
		EntityType:  domain.EntityTypeCourse,
		EntityID:    entityID,
		Status:      domain.JobStatusRunning,
		Stage:       "generating",
		UpdatedAt:   updatedAt,
	}
}

func TestWaitForChangeZeroWaitReturnsSnapshot(t *testing.T) {
	owner, entityID := uuid.New(), uuid.New()
	repo := &memJobRepo{job: runningJob(owner, entityID, time.Now())}
	svc := NewJobService(nil, logger.NewNop(), repo, nopNotifier{}, nil)

	job, err := svc.WaitForChange(context.Background(), owner,
		domain.EntityTypeCourse, entityID, domain.JobTypeLessonPlanBuild, time.Now(), 0)
	if err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
	if job == nil || job.Status != domain.JobStatusRunning {
		t.Fatalf("expected current snapshot, got %+v", job)
	}
	if repo.polls != 1 {
		t.Fatalf("zero wait must poll once, got %d", repo.polls)
	}
}

func TestWaitForChangeTerminalReturnsImmediately(t *testing.T) {
	owner, entityID := uuid.New(), uuid.New()
	job := runningJob(owner, entityID, time.Now().Add(-time.Minute))
	job.Status = domain.JobStatusCompleted
	repo := &memJobRepo{job: job}
	svc := NewJobService(nil, logger.NewNop(), repo, nopNotifier{}, nil)

	start := time.Now()
	got, err := svc.WaitForChange(context.Background(), owner,
		domain.EntityTypeCourse, entityID, domain.JobTypeLessonPlanBuild, time.Now(), 10*time.Second)
	if err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
	if got == nil || !got.Terminal() {
		t.Fatalf("expected terminal job, got %+v", got)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Fatalf("terminal job must return without waiting, took %s", elapsed)
	}
}

func TestWaitForChangeReturnsOnUpdateBeforeDeadline(t *testing.T) {
	owner, entityID := uuid.New(), uuid.New()
	since := time.Now()
	repo := &memJobRepo{job: runningJob(owner, entityID, since.Add(-time.Minute))}
	repo.onPoll = func(polls int, job *domain.GenerationJob) {
		// The worker advances the job between the first and second poll.
		if polls == 2 {
			job.Progress = 50
			job.UpdatedAt = time.Now()
		}
	}
	svc := NewJobService(nil, logger.NewNop(), repo, nopNotifier{}, nil)

	start := time.Now()
	got, err := svc.WaitForChange(context.Background(), owner,
		domain.EntityTypeCourse, entityID, domain.JobTypeLessonPlanBuild, since, 10*time.Second)
	if err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
	if got == nil || !got.UpdatedAt.After(since) {
		t.Fatalf("expected the updated job, got %+v", got)
	}
	if got.Progress != 50 {
		t.Fatalf("expected progress 50, got %d", got.Progress)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("update must cut the wait short, took %s", elapsed)
	}
}

func TestWaitForChangeTimesOutWithSnapshot(t *testing.T) {
	owner, entityID := uuid.New(), uuid.New()
	since := time.Now()
	repo := &memJobRepo{job: runningJob(owner, entityID, since.Add(-time.Minute))}
	svc := NewJobService(nil, logger.NewNop(), repo, nopNotifier{}, nil)

	got, err := svc.WaitForChange(context.Background(), owner,
		domain.EntityTypeCourse, entityID, domain.JobTypeLessonPlanBuild, since, 1500*time.Millisecond)
	if err != nil {
		t.Fatalf("WaitForChange: %v", err)
	}
	if got == nil || got.Status != domain.JobStatusRunning {
		t.Fatalf("expected the unchanged snapshot, got %+v", got)
	}
	if repo.polls < 2 {
		t.Fatalf("expected periodic re-polls before the deadline, got %d", repo.polls)
	}
}
