package scheduler

import (
	"context"

	"github.com/smallbiznis/panelbilling/internal/config"
	"go.uber.org/fx"
)

var Module = fx.Module("scheduler",
	fx.Provide(ProvideConfig),
	fx.Provide(New),
	fx.Invoke(NewScheduler),
)

func ProvideConfig(cfg config.Config) Config {
	return Config{
		RunInterval:  cfg.Recovery.Interval,
		BatchSize:    cfg.Recovery.BatchSize,
		QuietPeriod:  cfg.Recovery.QuietPeriod,
		AbandonAfter: cfg.Recovery.AbandonAfter,
		EnabledJobs:  cfg.Recovery.Jobs,
	}
}

func NewScheduler(lc fx.Lifecycle, cfg config.Config, sched *Scheduler) {
	if !cfg.Recovery.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithCancel(context.Background())

			go sched.RunForever(ctx)

			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					cancel()
					return nil
				},
			})

			return nil
		},
	})
}
