package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gateway-service/internal/api/routes"
	"gateway-service/internal/auth"
	"gateway-service/internal/config"
	"gateway-service/internal/database"
	"gateway-service/internal/gateway"
	"gateway-service/internal/repositories/mysql"
	"gateway-service/internal/services"

	kafkaadapter "gateway-service/internal/adapters/kafka"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting messaging gateway")

	var opts []gateway.Option

	// Optional Redis: presence hooks and distributed rate limiting.
	if cfg.Redis.URI != "" {
		redisClient, err := database.NewRedisConnection(&cfg.Redis)
		if err != nil {
			slog.Error("Failed to connect to Redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()

		redisService := services.NewRedisService(redisClient)
		opts = append(opts,
			gateway.WithRateLimiter(services.NewRedisRateLimiter(redisService)),
			gateway.WithHooks(gateway.Hooks{
				OnConnect: func(c *gateway.Connection) {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := redisService.SetUserOnline(ctx, c.UserID()); err != nil {
						slog.Error("Failed to set user online", "userID", c.UserID(), "error", err)
					}
				},
				OnDisconnect: func(c *gateway.Connection, reason string) {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					if err := redisService.SetUserOffline(ctx, c.UserID()); err != nil {
						slog.Error("Failed to set user offline", "userID", c.UserID(), "error", err)
					}
				},
			}),
		)
	}

	// Optional Kafka: mirror lifecycle events for observability pipelines.
	if len(cfg.Kafka.Brokers) > 0 {
		sink, err := kafkaadapter.NewEventSink(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			slog.Error("Failed to create Kafka event sink", "error", err)
			os.Exit(1)
		}
		defer sink.Close()
		opts = append(opts, gateway.WithEventSink(sink))
	}

	authenticator := auth.NewJWTAuthenticator(cfg.JWT.Secret)
	gw := gateway.New(gateway.Config{
		MaxConnections:      cfg.Gateway.MaxConnections,
		HeartbeatInterval:   cfg.Gateway.HeartbeatInterval,
		HistorySize:         cfg.Gateway.HistorySize,
		EventLogSize:        cfg.Gateway.EventLogSize,
		DefaultHistoryLimit: cfg.Gateway.HistoryLimit,
	}, authenticator, opts...)

	// Optional MySQL: merge administratively defined channels into the
	// bootstrap registry.
	if cfg.MySQL.DSN != "" {
		db, err := database.NewMySQLConnection(cfg.MySQL.DSN)
		if err != nil {
			slog.Error("Failed to connect to MySQL", "error", err)
			os.Exit(1)
		}
		channelRepo := mysql.NewChannelRepository(db)
		if err := channelRepo.Migrate(); err != nil {
			slog.Error("Failed to migrate channel store", "error", err)
			os.Exit(1)
		}
		records, err := channelRepo.ListActive()
		if err != nil {
			slog.Error("Failed to load administrative channels", "error", err)
			os.Exit(1)
		}
		for _, record := range records {
			if err := gw.Registry().Register(record.ToChannel()); err != nil {
				slog.Warn("Skipping administrative channel", "channel", record.Name, "error", err)
			}
		}
		slog.Info("Administrative channels loaded", "count", len(records))
	}

	monitor := gateway.NewLivenessMonitor(gw, nil, cfg.Gateway.HeartbeatInterval)
	go monitor.Run()

	router := routes.NewRouter(gw, cfg.JWT.Secret)
	router.SetupRoutes()

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.GetEngine(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		slog.Info("Server starting", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")
	monitor.Stop()
	gw.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Error("Server shutdown failed", "error", err)
	}
	slog.Info("Server stopped")
}
