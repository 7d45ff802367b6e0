package scheduler

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/biller/internal/app/service/billing"
	cfgpkg "github.com/fatflowers/biller/pkg/config"
)

// Scheduler drives the two recurring billing jobs. Each job is wrapped with
// Recover (a panic in a run is logged, the next run proceeds) and
// SkipIfStillRunning (a job never overlaps itself); the two jobs are not
// serialized against each other.
type Scheduler struct {
	cron *cron.Cron
	log  *zap.SugaredLogger
}

type zapCronLogger struct {
	log *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debugw("cron: "+msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Errorw("cron: "+msg, append(keysAndValues, "err", err)...)
}

func New(cfg *cfgpkg.Config, mgr billing.Manager, log *zap.SugaredLogger) (*Scheduler, error) {
	cl := zapCronLogger{log: log}
	c := cron.New(cron.WithChain(
		cron.Recover(cl),
		cron.SkipIfStillRunning(cl),
	))

	if _, err := c.AddFunc(cfg.Billing.RenewalSchedule, func() {
		log.Infow("running scheduled renewal job")
		if _, err := mgr.ProcessRenewals(context.Background()); err != nil {
			log.Errorw("renewal job failed", "err", err)
		}
	}); err != nil {
		return nil, err
	}

	if _, err := c.AddFunc(cfg.Billing.StatusSchedule, func() {
		log.Infow("running scheduled status job")
		if _, err := mgr.ReconcileStatuses(context.Background()); err != nil {
			log.Errorw("status job failed", "err", err)
		}
	}); err != nil {
		return nil, err
	}

	return &Scheduler{cron: c, log: log}, nil
}

func (s *Scheduler) Start() {
	s.log.Infow("starting billing scheduler")
	s.cron.Start()
}

// Stop halts scheduling and waits for any running job to finish.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.log.Infow("stopping billing scheduler")
	done := s.cron.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func register(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			s.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return s.Stop(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(register),
)
