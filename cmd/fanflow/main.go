package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/fanflowhq/fanflow/app/controllers"
	"github.com/fanflowhq/fanflow/internal/pkg/autoresponse"
	"github.com/fanflowhq/fanflow/internal/pkg/cache"
	"github.com/fanflowhq/fanflow/internal/pkg/config"
	"github.com/fanflowhq/fanflow/internal/pkg/env"
	"github.com/fanflowhq/fanflow/internal/pkg/fanvue"
	"github.com/fanflowhq/fanflow/internal/pkg/ledger"
	"github.com/fanflowhq/fanflow/internal/pkg/ppv"
	"github.com/fanflowhq/fanflow/internal/pkg/router"
	"github.com/fanflowhq/fanflow/internal/pkg/webhook"
)

func main() {
	app, addr, shutdown := NewApplication()
	defer shutdown()

	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		_ = app.Shutdown()
	}()

	if err := app.Listen(addr); err != nil {
		log.Fatal(err)
	}
}

// NewApplication wires the automation core and returns the Fiber app, its
// listen address, and a shutdown hook that releases pending timers and
// in-flight runs.
func NewApplication() (*fiber.App, string, func()) {
	env.SetupEnvFile()

	settings, err := config.Load()
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	store := newLedgerStore(settings)
	ledgerSvc := ledger.New(store, settings.CommissionRate)

	sender := fanvue.NewClientFromEnv()
	scheduler := autoresponse.NewScheduler(sender, settings.AutoResponseEnabled)
	runner := ppv.NewRunner(sender, ledgerSvc, ppv.RunnerConfig{
		PaymentTTL:        settings.PaymentTTL(),
		ReminderEnabled:   settings.PPVReminderEnabled,
		ReminderWait:      settings.ReminderWait(),
		MaxResendAttempts: settings.PPVMaxResendAttempts,
		OnExpiry:          ppv.Policy(settings.PPVOnExpiry),
	})
	dispatcher := webhook.NewDispatcher(settings, ledgerSvc, scheduler, runner)

	app := fiber.New(fiber.Config{
		BodyLimit: 1 << 20, // 1 MiB; webhook payloads are small
	})
	app.Use(recover.New(), logger.New())

	router.InstallRouter(app,
		router.NewApiRouter(
			controllers.NewWebhookController(dispatcher, ledgerSvc),
			controllers.NewScriptController(),
			settings.APIKey,
		),
	)

	shutdown := func() {
		dispatcher.Drain()
		scheduler.Stop()
		runner.Stop()
	}
	addr := fmt.Sprintf("%s:%s", settings.AppHost, settings.AppPort)
	return app, addr, shutdown
}

func newLedgerStore(settings *config.Settings) ledger.Store {
	if settings.LedgerBackend == config.LedgerBackendRedis {
		cache.SetupCache()
		return ledger.NewRedisStore(cache.GetClient(), settings.LedgerCapacity)
	}
	return ledger.NewMemoryStore(settings.LedgerCapacity)
}
