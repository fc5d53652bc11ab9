package services

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/teachflow/teachflow-backend/internal/domain"
	"github.com/teachflow/teachflow-backend/internal/pkg/logger"
	"github.com/teachflow/teachflow-backend/internal/sse"
)

// JobNotifier pushes job lifecycle events to clients. Events go to the local
// SSE hub directly and, when Redis is configured, onto a pub/sub channel so
// other instances can relay them to their own connected clients.
type JobNotifier interface {
	JobCreated(ownerUserID uuid.UUID, job *domain.GenerationJob)
	JobProgress(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, progress int, message string)
	JobFailed(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, errorMessage string)
	JobDone(ownerUserID uuid.UUID, job *domain.GenerationJob)
}

const jobEventsChannel = "teachflow:job_events"

type jobNotifier struct {
	log *logger.Logger
	hub *sse.Hub
	rdb *redis.Client
}

func NewJobNotifier(baseLog *logger.Logger, hub *sse.Hub, rdb *redis.Client) JobNotifier {
	return &jobNotifier{
		log: baseLog.With("service", "JobNotifier"),
		hub: hub,
		rdb: rdb,
	}
}

func (n *jobNotifier) emit(msg sse.Message) {
	n.hub.Broadcast(msg)
	if n.rdb == nil {
		return
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := n.rdb.Publish(context.Background(), jobEventsChannel, raw).Err(); err != nil {
		n.log.Debug("publish job event failed", "error", err)
	}
}

func (n *jobNotifier) JobCreated(ownerUserID uuid.UUID, job *domain.GenerationJob) {
	n.emit(sse.Message{
		Channel: ownerUserID.String(),
		Event:   sse.EventJobCreated,
		Data:    map[string]any{"job": job},
	})
}

func (n *jobNotifier) JobProgress(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, progress int, message string) {
	n.emit(sse.Message{
		Channel: ownerUserID.String(),
		Event:   sse.EventJobProgress,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"stage":    stage,
			"progress": progress,
			"message":  message,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobFailed(ownerUserID uuid.UUID, job *domain.GenerationJob, stage string, errorMessage string) {
	n.emit(sse.Message{
		Channel: ownerUserID.String(),
		Event:   sse.EventJobFailed,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"stage":    stage,
			"error":    errorMessage,
			"job":      job,
		},
	})
}

func (n *jobNotifier) JobDone(ownerUserID uuid.UUID, job *domain.GenerationJob) {
	n.emit(sse.Message{
		Channel: ownerUserID.String(),
		Event:   sse.EventJobDone,
		Data: map[string]any{
			"job_id":   job.ID,
			"job_type": job.JobType,
			"job":      job,
		},
	})
}

// StartJobEventRelay subscribes to the shared Redis channel and rebroadcasts
// events into the local SSE hub. Events this instance published come back
// through the subscription too; duplicate delivery to the same client is
// acceptable since the payload carries full job state.
func StartJobEventRelay(ctx context.Context, baseLog *logger.Logger, hub *sse.Hub, rdb *redis.Client) {
	if rdb == nil {
		return
	}
	log := baseLog.With("component", "JobEventRelay")
	sub := rdb.Subscribe(ctx, jobEventsChannel)
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg sse.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Warn("malformed job event payload", "error", err)
					continue
				}
				hub.Broadcast(msg)
			}
		}
	}()
}
