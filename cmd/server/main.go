// Command server runs the job workflow engine HTTP API.
//
// Startup order: env + config, logging, database (with migrations), tracing,
// notification dispatcher, background offer sweeper, HTTP server. Shutdown
// reverses it: drain HTTP, stop the sweeper and dispatcher, flush traces.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/language"

	_ "github.com/RaunoDriveX/drivex-jobflow/docs"
	"github.com/RaunoDriveX/drivex-jobflow/internal/config"
	httpapi "github.com/RaunoDriveX/drivex-jobflow/internal/http"
	"github.com/RaunoDriveX/drivex-jobflow/internal/notify"
	"github.com/RaunoDriveX/drivex-jobflow/internal/observability"
	"github.com/RaunoDriveX/drivex-jobflow/internal/repo"
	"github.com/RaunoDriveX/drivex-jobflow/internal/services"
	"github.com/RaunoDriveX/drivex-jobflow/internal/sysutil"
)

var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Info().Str("version", version).Str("port", cfg.Port).Msg("starting jobflow server")

	ctx := context.Background()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("setup tracing")
	}

	// Notification pipeline: transitions publish, the dispatcher delivers.
	locale, err := language.Parse(cfg.NotifyLocale)
	if err != nil {
		locale = language.English
	}
	dispatcher := notify.NewDispatcher(
		notify.LogSender{Logger: log.Logger, Locale: locale},
		log.Logger,
		cfg.NotifyBuffer,
	)
	dispatcher.Start(ctx)

	offers := services.NewOfferService(db)
	offers.DefaultTTL = cfg.OfferTTL
	selections := services.NewSelectionService(db)
	workflow := services.NewWorkflowService(db, offers, dispatcher)
	workflow.OfferTTL = cfg.OfferTTL

	// Expired-offer sweeper: lazy expiry already covers reads, the sweeper
	// keeps the ledger tidy for offers nobody ever looks at again.
	sweepCtx, stopSweep := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(cfg.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-sweepCtx.Done():
				return
			case <-ticker.C:
				n, err := offers.SweepExpired(sweepCtx)
				if err != nil {
					log.Warn().Err(err).Msg("offer sweep failed")
				} else if n > 0 {
					log.Info().Int64("expired", n).Msg("offer sweep")
				}
			}
		}
	}()

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, db, workflow, selections, offers, cfg)

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	stopSweep()
	dispatcher.Stop()

	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("tracer shutdown")
	}
	log.Info().Msg("server exited")
}
