package trend

import (
	"context"

	"wavesight-core/pkg/config"
	"wavesight-core/pkg/task"
	"wavesight-core/pkg/taskname"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

func (s *Service) HandleExpireStaleTask(ctx context.Context, t *asynq.Task) error {
	n, err := s.ExpireStale(ctx)
	if err != nil {
		return err
	}
	zap.L().Debug("stale trend sweep finished", zap.String("task_type", t.Type()), zap.Int("expired", n))
	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, svc *Service) {
	mux.HandleFunc(taskname.TrendExpireStale, svc.HandleExpireStaleTask)
}

func expirePeriodic(cfg *config.Config) task.Periodic {
	spec := cfg.Worker.ExpireCronSpec
	if spec == "" {
		spec = "@every 15m"
	}
	return task.Periodic{
		CronSpec: spec,
		Task:     asynq.NewTask(taskname.TrendExpireStale, nil),
		Opts:     []asynq.Option{asynq.Queue("default"), asynq.MaxRetry(3)},
	}
}
