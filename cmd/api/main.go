package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/RovierrHQ/Rovierr-sub004/internal/auth"
	"github.com/RovierrHQ/Rovierr-sub004/internal/chat"
	"github.com/RovierrHQ/Rovierr-sub004/internal/config"
	"github.com/RovierrHQ/Rovierr-sub004/internal/connection"
	"github.com/RovierrHQ/Rovierr-sub004/internal/data"
	"github.com/RovierrHQ/Rovierr-sub004/internal/db"
	"github.com/RovierrHQ/Rovierr-sub004/internal/middleware"
	"github.com/RovierrHQ/Rovierr-sub004/internal/presence"
	"github.com/RovierrHQ/Rovierr-sub004/internal/realtime"
	"github.com/RovierrHQ/Rovierr-sub004/internal/rpc"
	"github.com/RovierrHQ/Rovierr-sub004/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(logger.Config{
		Development: cfg.Logger.Development,
		Level:       cfg.Logger.Level,
	})
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx := context.Background()

	// Mongo
	dbClient, err := db.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := dbClient.Close(disconnectCtx); err != nil {
			log.Error("failed to disconnect from MongoDB", "err", err)
		}
	}()

	if err := dbClient.CreateIndexes(ctx); err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	log.Info("connected to MongoDB", "database", cfg.Mongo.Database)

	// NATS
	nc, err := connectNATS(cfg, log)
	if err != nil {
		return err
	}
	defer nc.Close()
	log.Info("connected to NATS", "url", nc.ConnectedUrl())

	// Stores
	connectionsStore := data.NewConnectionsStore(dbClient.ConnectionsCollection())
	presenceStore := data.NewPresenceStore(dbClient.PresenceCollection())
	conversationsStore := data.NewConversationsStore(dbClient.ConversationsCollection(), dbClient.ParticipantsCollection())
	messagesStore := data.NewMessagesStore(dbClient.MessagesCollection())

	// Services
	publisher := realtime.NewNATSPublisher(nc)
	fanout := realtime.NewFanout(publisher, connectionsStore)

	connectionSvc := connection.NewService(connectionsStore, log)
	tracker := presence.NewTracker(presenceStore, connectionsStore, fanout, log)
	typing := presence.NewTypingCoordinator(cfg.Presence.TypingWindow, fanout, log)
	defer typing.Shutdown()

	chatSvc := chat.NewService(conversationsStore, messagesStore, chat.NewGate(connectionSvc), fanout, log)

	limiter := middleware.NewLimiterStore(cfg.RateLimit.ConnectionRPM, cfg.RateLimit.Burst, 5*time.Minute)
	defer limiter.Stop()

	server := rpc.NewServer(rpc.Config{
		Conn:        nc,
		JWT:         auth.NewJWTManager(cfg.Auth.SessionSecret),
		TokenMinter: auth.NewTokenMinter(cfg.Auth.TransportSecret, cfg.Auth.TransportTokenTTL),
		Connections: connectionSvc,
		Presence:    tracker,
		Typing:      typing,
		Chat:        chatSvc,
		Limiter:     limiter,
		Logger:      log,
	})
	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start rpc server: %w", err)
	}
	defer server.Stop()

	// Pending-request expiry sweep
	sweepDone := make(chan struct{})
	go expiryLoop(connectionSvc, cfg.Presence.PendingRequestTTL, cfg.Presence.ExpirySweepEvery, sweepDone, log)
	defer close(sweepDone)

	// Block until shutdown
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-sigCtx.Done()

	log.Info("shutting down")
	if err := nc.Drain(); err != nil {
		log.Error("failed to drain NATS connection", "err", err)
	}
	return nil
}

// connectNATS retries until the broker is reachable; in orchestrated
// environments the broker may come up after this service.
func connectNATS(cfg *config.Config, log *logger.Logger) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("rovierr-core"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("NATS disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if cfg.NATS.User != "" {
		opts = append(opts, nats.UserInfo(cfg.NATS.User, cfg.NATS.Pass))
	}

	var nc *nats.Conn
	var err error
	for attempt := 1; attempt <= 30; attempt++ {
		nc, err = nats.Connect(cfg.NATS.URL, opts...)
		if err == nil {
			return nc, nil
		}
		log.Info("waiting for NATS", "attempt", attempt, "err", err)
		time.Sleep(2 * time.Second)
	}
	return nil, fmt.Errorf("failed to connect to NATS: %w", err)
}

// expiryLoop periodically deletes pending requests older than the TTL.
func expiryLoop(svc *connection.Service, ttl, every time.Duration, done <-chan struct{}, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			if _, err := svc.ExpirePending(ctx, ttl); err != nil {
				log.Error("pending-request sweep failed", "err", err)
			}
			cancel()
		case <-done:
			return
		}
	}
}
