package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/PetoAdam/homenavi/govee-adapter/internal/capability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/config"
	goveeapi "github.com/PetoAdam/homenavi/govee-adapter/internal/govee"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/httpapi"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/middleware"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/mqtt"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/observability"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/proto/govee"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/realtime"
	"github.com/PetoAdam/homenavi/govee-adapter/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	observability.NewLogger(cfg.LogLevel)

	db, err := store.OpenPostgres(cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB, cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresSSLMode)
	if err != nil {
		slog.Error("db init failed", "error", err)
		os.Exit(1)
	}
	repo, err := store.NewRepository(db)
	if err != nil {
		slog.Error("db migrate failed", "error", err)
		os.Exit(1)
	}

	mirror, rdb := store.ConnectMirror(context.Background(), cfg.RedisAddr, cfg.RedisPassword)

	router, err := capability.LoadRouter(cfg.RoutesFile)
	if err != nil {
		slog.Error("route table load failed", "path", cfg.RoutesFile, "error", err)
		os.Exit(1)
	}

	mClient, err := mqtt.New(cfg.MQTTBrokerURL, mqtt.Options{
		ClientID:    cfg.AdapterID,
		WillTopic:   govee.StatusTopic(cfg.AdapterID),
		WillPayload: govee.StatusPayload(cfg.AdapterID, cfg.Version, "offline", "connection lost"),
	})
	if err != nil {
		slog.Error("mqtt init failed", "error", err)
		os.Exit(1)
	}

	shutdownObs, promHandler, tracer := observability.SetupObservability("govee-adapter")
	defer shutdownObs()

	api := goveeapi.New(cfg.APIKey, cfg.TimeoutDuration(), goveeapi.WithBaseURL(cfg.APIURL))
	adapter, err := govee.New(mClient, api, repo, mirror, govee.Config{
		AdapterID:    cfg.AdapterID,
		Version:      cfg.Version,
		FriendlyName: cfg.FriendlyName,
		Router:       router,
		PollInterval: cfg.PollDuration(),
		Timeout:      cfg.TimeoutDuration(),
		Cooldown:     cfg.Cooldown,
	})
	if err != nil {
		slog.Error("adapter init failed", "error", err)
		os.Exit(1)
	}

	hub := realtime.NewHub(func() []realtime.Event {
		devices := adapter.Devices()
		out := make([]realtime.Event, 0, len(devices))
		for _, d := range devices {
			out = append(out, realtime.Event{Type: realtime.EventState, DeviceID: d.DeviceID, State: d.State})
		}
		return out
	})
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)
	adapter.OnState(func(u govee.StateUpdate) {
		hub.Publish(realtime.Event{Type: realtime.EventState, DeviceID: u.DeviceID, State: u.State})
	})

	if err := adapter.Start(context.Background()); err != nil {
		slog.Error("govee start failed", "error", err)
		mClient.Disconnect()
		os.Exit(1)
	}

	opts := httpapi.ServerOptions{Metrics: promHandler, Realtime: hub, Tracer: tracer}
	if cfg.JWTPublicKey != "" {
		verifier, err := middleware.LoadVerifier(cfg.JWTPublicKey)
		if err != nil {
			slog.Error("jwt public key load failed", "path", cfg.JWTPublicKey, "error", err)
			os.Exit(1)
		}
		opts.Verifier = verifier
	} else {
		slog.Warn("JWT_PUBLIC_KEY_PATH not set, admin endpoints disabled")
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     httpapi.NewServer(adapter, opts).Router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("adapter server error", "error", err)
		}
	}()
	slog.Info("govee-adapter started", "port", cfg.Port, "adapter_id", cfg.AdapterID)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	adapter.Stop()
	stopHub()
	mClient.Disconnect()
	if rdb != nil {
		_ = rdb.Close()
	}
	_ = srv.Shutdown(ctx)
	slog.Info("govee-adapter stopped")
}
