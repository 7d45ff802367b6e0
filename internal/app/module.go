package app

import (
	"time"

	"github.com/fatflowers/biller/internal/app/api/server"
	"github.com/fatflowers/biller/internal/app/scheduler"
	"github.com/fatflowers/biller/internal/app/service/billing"
	"github.com/fatflowers/biller/internal/app/service/ledger"
	"github.com/fatflowers/biller/internal/app/service/notifier"
	"github.com/fatflowers/biller/internal/app/service/payment"
	"github.com/fatflowers/biller/internal/platform/db"
	"github.com/fatflowers/biller/internal/platform/gateway"
	"github.com/fatflowers/biller/internal/store"
	"github.com/fatflowers/biller/pkg/clock"
	"github.com/fatflowers/biller/pkg/config"
	"github.com/fatflowers/biller/pkg/logger"

	"go.uber.org/fx"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core wires everything except the HTTP server and the cron scheduler, so the
// job runner binary can reuse it without opening a listen socket.
var Core = fx.Options(
	logger.Module,
	config.Module,
	clock.Module,
	db.Module,
	store.Module,
	gateway.Module,
	ledger.Module,
	payment.Module,
	notifier.Module,
	billing.Module,
)

var Module = fx.Options(
	Core,
	scheduler.Module,
	server.Module,
)
