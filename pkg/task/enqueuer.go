package task

//go:generate mockgen -source=enqueuer.go -destination=mock/enqueuer.go -package=mock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"wavesight-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

type enqueuerImpl struct {
	client *asynq.Client
}

// NewEnqueuer creates a new Enqueuer instance using asynq.Client.
func NewEnqueuer(client *asynq.Client) Enqueuer {
	return &enqueuerImpl{client: client}
}

func (e *enqueuerImpl) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	info, err := e.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	return info, nil
}

// NewJSONTask marshals payload into an asynq task of the given type.
func NewJSONTask(typename string, payload any, opts ...asynq.Option) (*asynq.Task, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typename, b, opts...), nil
}

// RebuildProfiles schedules a profile cache rebuild per user. Failures are only logged.
func RebuildProfiles(ctx context.Context, e Enqueuer, userIDs ...string) {
	if e == nil {
		return
	}
	for _, userID := range userIDs {
		t, err := NewJSONTask(taskname.ProfileRebuild, taskname.ProfileRebuildPayload{UserID: userID},
			asynq.Queue("low"), asynq.Unique(30*time.Second), asynq.MaxRetry(5))
		if err != nil {
			zap.L().Error("failed to build profile rebuild task", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		if _, err := e.Enqueue(ctx, t); err != nil && !errors.Is(err, asynq.ErrDuplicateTask) {
			zap.L().Warn("failed to enqueue profile rebuild", zap.String("user_id", userID), zap.Error(err))
		}
	}
}
