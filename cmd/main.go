// Package main provides the entry point for the checkin lock controller.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"checkin-lock/internal/batcher"
	"checkin-lock/internal/checkin"
	"checkin-lock/internal/config"
	"checkin-lock/internal/diaglog"
	"checkin-lock/internal/dispatch"
	"checkin-lock/internal/handler"
	"checkin-lock/internal/identity"
	"checkin-lock/internal/lock"
	"checkin-lock/internal/logger"
	"checkin-lock/internal/model"
	"checkin-lock/internal/reboot"
	"checkin-lock/internal/station"
	"checkin-lock/internal/transport"
)

var errRestart = errors.New("restart requested")

// Run is the testable entrypoint for the application. It returns errRestart
// when the controller asked to be rebooted.
func Run(ctx context.Context) error {
	cfg := config.Load()
	base := logger.New(cfg.Env)
	base.Info("Starting checkin lock controller", zap.String("device_id", cfg.DeviceID))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	nc, err := transport.Connect(cfg.NATSURL, base)
	if err != nil {
		base.Error("transport unavailable", zap.Error(err))
		return err
	}
	bus := transport.New(nc, base, cfg.DeviceID, cfg.CheckinSubject)
	defer func() { _ = bus.Close() }()

	diag := diaglog.New(bus, cfg.DiagRate, 64)
	log := logger.WithDiagnostics(base, diag, zapcore.WarnLevel)
	defer func() { _ = log.Sync() }()

	rebooter := reboot.NewProcessRebooter(cancel)
	sched := reboot.New(log, rebooter, reboot.Options{
		DailyHour:     cfg.DailyRebootHour,
		DailyMinute:   cfg.DailyRebootMinute,
		Window:        cfg.RebootWindow,
		DeferredDelay: cfg.DeferredRebootDelay,
	})

	store, closeStore, err := openIdentityStore(ctx, cfg, nc)
	if err != nil {
		log.Error("identity store unavailable", zap.Error(err))
		return err
	}
	defer closeStore()

	ids, err := identity.Open(ctx, log, store, sched, model.DeviceIdentity{})
	if err != nil {
		log.Error("identity unavailable", zap.Error(err))
		return err
	}
	live := ids.Live()

	validate := validator.New()
	solenoid := lock.NewSolenoid(log, lock.NewLogPin(log, "solenoid"), cfg.UnlockPulse)
	audit := batcher.New(cfg, log)
	checkins := checkin.New(log, validate, solenoid, audit, cfg.DeviceID, cfg.Secret, live)
	hs := station.New(log, validate, bus, live.DeviceType)

	d := dispatch.New(log, dispatch.Deps{
		Handshake: hs,
		Checkins:  checkins,
		Diag:      diag,
		Gate:      diag,
		Reboot:    sched,
		Indicator: lock.NewLogPin(log, "heartbeat"),
	}, dispatch.Options{
		TickInterval:      cfg.TickInterval,
		ConfigTimeout:     cfg.ConfigTimeout,
		HeartbeatInterval: cfg.HeartbeatInterval,
	})

	if err := bus.SubscribeConfigResponses(func(p []byte) { _ = hs.OnConfigResponse(p) }); err != nil {
		log.Error("subscribe failed", zap.Error(err))
		return err
	}
	if err := bus.SubscribeCheckins(func(p []byte) { d.Offer(p) }); err != nil {
		log.Error("subscribe failed", zap.Error(err))
		return err
	}

	r := chi.NewRouter()
	handler.New(log, d, ids, checkins, hs, cfg.FunctionsToken).Register(r)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go audit.Start()
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", zap.Error(err))
			serveErr <- err
			cancel()
		}
	}()

	_ = d.Run(ctx)

	log.Info("Shutting down controller")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()
	_ = srv.Shutdown(ctxShutdown)
	audit.Stop()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
	}
	if rebooter.Requested() {
		return errRestart
	}
	return nil
}

func openIdentityStore(ctx context.Context, cfg *config.Config, nc *nats.Conn) (identity.Store, func(), error) {
	if cfg.IdentityStore == config.IdentityStoreNATS {
		js, err := jetstream.New(nc)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
		}
		s, err := identity.NewKVStore(ctx, js, cfg.IdentityBucket, cfg.DeviceID)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}

	s, err := identity.OpenGormStore(cfg.IdentityDBPath)
	if err != nil {
		return nil, nil, err
	}
	return s, func() { _ = s.Close() }, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := Run(ctx); err != nil {
		if errors.Is(err, errRestart) {
			os.Exit(reboot.RestartExitCode)
		}
		os.Exit(1)
	}
}
