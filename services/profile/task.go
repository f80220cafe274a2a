package profile

import (
	"context"
	"encoding/json"
	"fmt"

	"wavesight-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func (s *Service) HandleRebuildTask(ctx context.Context, t *asynq.Task) error {
	var payload taskname.ProfileRebuildPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	if payload.UserID == "" {
		return fmt.Errorf("%s payload without user_id: %w", t.Type(), asynq.SkipRetry)
	}

	p, err := s.Rebuild(ctx, payload.UserID)
	if err != nil {
		return err
	}

	zap.L().Debug("profile rebuilt",
		zap.String("user_id", p.UserID),
		zap.String("tier", string(p.PerformanceTier)),
		zap.String("pending", p.PendingEarnings.String()),
	)
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.ProfileRebuild, svc.HandleRebuildTask)
}
