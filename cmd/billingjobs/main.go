package main

import (
	"context"
	"flag"
	"os"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/biller/internal/app"
	"github.com/fatflowers/biller/internal/app/service/billing"
)

// billingjobs runs the scheduled billing passes once and exits. Meant for
// one-off operational runs and external schedulers; the api binary runs the
// same jobs on its own cron.
func main() {
	job := flag.String("job", "all", "which job to run: renewals, statuses, or all")
	flag.Parse()

	exitCode := 0
	defer func() { os.Exit(exitCode) }()

	var (
		mgr billing.Manager
		log *zap.SugaredLogger
	)
	a := fx.New(
		app.Core,
		fx.Populate(&mgr, &log),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.DefaultStartTimeout)
	defer cancel()
	if err := a.Start(startCtx); err != nil {
		zap.NewExample().Sugar().Errorf("failed to start app: %v", err)
		exitCode = 1
		return
	}
	defer func() {
		stopCtx, cancel2 := context.WithTimeout(context.Background(), app.DefaultStopTimeout)
		defer cancel2()
		if err := a.Stop(stopCtx); err != nil {
			log.Errorf("failed to stop app: %v", err)
			exitCode = 1
		}
	}()

	ctx := context.Background()

	if *job == "renewals" || *job == "all" {
		summary, err := mgr.ProcessRenewals(ctx)
		if err != nil {
			log.Errorw("renewal job failed", "err", err)
			exitCode = 1
			return
		}
		log.Infow("renewal job finished",
			"processed", summary.Processed, "succeeded", summary.Succeeded,
			"failed", summary.Failed, "skipped", summary.Skipped)
	}

	if *job == "statuses" || *job == "all" {
		summary, err := mgr.ReconcileStatuses(ctx)
		if err != nil {
			log.Errorw("status job failed", "err", err)
			exitCode = 1
			return
		}
		log.Infow("status job finished",
			"processed", summary.Processed, "succeeded", summary.Succeeded,
			"failed", summary.Failed, "skipped", summary.Skipped)
	}
}
