// Package runtime is the execution contract between the job system and the
// generation pipelines. A Context wraps the claimed job row, the repository
// that persists its state, and the notifier that pushes updates to clients.
// Pipelines never touch the job row directly; Progress, Fail and Succeed are
// the only sanctioned transitions.
package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/repos"
)

// Notifier receives job lifecycle events for client delivery. Declared here
// so pipelines depend on runtime alone; the SSE/Redis implementation lives in
// services.
type Notifier interface {
	JobProgress(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, pct int, msg string)
	JobFailed(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, errMsg string)
	JobDone(ownerUserID uuid.UUID, job *domain.GenerationJob)
}

type Context struct {
	Ctx    context.Context
	DB     *gorm.DB
	Job    *domain.GenerationJob
	Repo   repos.GenerationJobRepo
	Notify Notifier

	payload map[string]any
}

// NewContext builds a runtime.Context for a claimed job. The payload JSON is
// decoded eagerly; a malformed payload yields an empty map and handlers
// validate required fields themselves.
func NewContext(ctx context.Context, db *gorm.DB, job *domain.GenerationJob, repo repos.GenerationJobRepo, notify Notifier) *Context {
	c := &Context{
		Ctx:    ctx,
		DB:     db,
		Job:    job,
		Repo:   repo,
		Notify: notify,
	}
	_ = c.decodePayload()
	return c
}

func (c *Context) decodePayload() error {
	if c.Job == nil {
		return nil
	}
	if len(c.Job.Payload) == 0 {
		c.payload = map[string]any{}
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(c.Job.Payload, &m); err != nil {
		c.payload = map[string]any{}
		return err
	}
	c.payload = m
	return nil
}

// Payload never returns nil.
func (c *Context) Payload() map[string]any {
	if c.payload == nil {
		c.payload = map[string]any{}
	}
	return c.payload
}

// PayloadUUID reads a payload field and parses it as a UUID.
func (c *Context) PayloadUUID(key string) (uuid.UUID, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fmt.Sprint(v))
	if err != nil {
		return uuid.Nil, false
	}
	return id, true
}

// PayloadInt reads a payload field as an integer; JSON numbers arrive as
// float64.
func (c *Context) PayloadInt(key string) (int, bool) {
	v, ok := c.Payload()[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	default:
		return 0, false
	}
}

// PayloadBool reads a payload field as a boolean.
func (c *Context) PayloadBool(key string) bool {
	v, ok := c.Payload()[key]
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

var terminalStatuses = []string{domain.JobStatusCompleted, domain.JobStatusFailed}

// Progress publishes a non-terminal update: stage, percent and message are
// persisted with a fresh heartbeat, guarded so a terminal job is never
// overwritten, then mirrored in memory and pushed to the notifier.
func (c *Context) Progress(stage string, pct int, msg string) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Job.ID, terminalStatuses, map[string]interface{}{
			"stage":        stage,
			"progress":     pct,
			"message":      msg,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Stage = stage
		c.Job.Progress = pct
		c.Job.Message = msg
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobProgress(c.Job.OwnerUserID, c.Job, stage, pct, msg)
	}
}

// Fail terminally fails the job: status=failed, the error recorded, the lock
// released. A job that already completed is left untouched.
func (c *Context) Fail(stage string, err error) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	msg := ""
	if err != nil {
		msg = err.Error()
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Job.ID, []string{domain.JobStatusCompleted}, map[string]interface{}{
			"status":        domain.JobStatusFailed,
			"stage":         stage,
			"message":       fmt.Sprintf("生成失败：%s", msg),
			"error":         msg,
			"last_error_at": now,
			"locked_at":     nil,
			"progress":      0,
			"updated_at":    now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = domain.JobStatusFailed
		c.Job.Stage = stage
		c.Job.Message = fmt.Sprintf("生成失败：%s", msg)
		c.Job.Error = msg
		c.Job.LastErrorAt = &now
		c.Job.LockedAt = nil
		c.Job.Progress = 0
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobFailed(c.Job.OwnerUserID, c.Job, stage, msg)
	}
}

// Succeed terminally completes the job with progress 100, a final message
// and an optional result payload.
func (c *Context) Succeed(finalStage, msg string, result any) {
	if c == nil {
		return
	}
	ctx := c.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	now := time.Now()
	var res datatypes.JSON
	if result != nil {
		b, _ := json.Marshal(result)
		res = datatypes.JSON(b)
	}

	if c.Repo != nil && c.Job != nil && c.Job.ID != uuid.Nil {
		ok, _ := c.Repo.UpdateFieldsUnlessStatus(ctx, c.DB, c.Job.ID, []string{domain.JobStatusFailed}, map[string]interface{}{
			"status":       domain.JobStatusCompleted,
			"stage":        finalStage,
			"progress":     100,
			"message":      msg,
			"error":        "",
			"result":       res,
			"locked_at":    nil,
			"heartbeat_at": now,
			"updated_at":   now,
		})
		if !ok {
			return
		}
	}

	if c.Job != nil {
		c.Job.Status = domain.JobStatusCompleted
		c.Job.Stage = finalStage
		c.Job.Progress = 100
		c.Job.Message = msg
		c.Job.Error = ""
		c.Job.Result = res
		c.Job.LockedAt = nil
		c.Job.HeartbeatAt = &now
		c.Job.UpdatedAt = now
	}

	if c.Notify != nil && c.Job != nil {
		c.Notify.JobDone(c.Job.OwnerUserID, c.Job)
	}
}

// SetOutputPath records where the run's artifact landed (zip or rendered
// document), outside the normal lifecycle fields.
func (c *Context) SetOutputPath(path string) error {
	if c.Repo == nil || c.Job == nil || c.Job.ID == uuid.Nil {
		return nil
	}
	_, err := c.Repo.UpdateFieldsUnlessStatus(c.Ctx, c.DB, c.Job.ID, terminalStatuses, map[string]interface{}{
		"output_path": path,
	})
	if err == nil {
		c.Job.OutputPath = path
	}
	return err
}
