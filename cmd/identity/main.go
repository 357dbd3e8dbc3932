package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/shopmesh/shopmesh/internal/config"
	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/identity"
	"github.com/shopmesh/shopmesh/internal/logging"
	"github.com/shopmesh/shopmesh/internal/outbox"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "identity:", err)
		os.Exit(1)
	}
}

// brokerDown is the health status when the publisher could not even be
// constructed at startup.
type brokerDown struct{}

func (brokerDown) BrokerHealthy() bool { return false }

// startDrainer runs the drainer in the background and returns a stop
// function that cancels its loop and blocks until it has exited. The
// loop gets its own cancellable context so stop unblocks even when the
// parent context was never cancelled, such as a ListenAndServe error.
func startDrainer(ctx context.Context, drainer *outbox.Drainer) (stop func()) {
	drainCtx, cancel := context.WithCancel(ctx)
	go drainer.Run(drainCtx)
	return func() {
		cancel()
		drainer.Wait()
	}
}

func run() error {
	cfg, err := config.LoadIdentity()
	if err != nil {
		return err
	}
	logger := logging.New("identity", cfg.Development)
	logger.Info("starting", "config", cfg.String())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}

	users := identity.NewStore(db)
	outboxStore := outbox.NewStore(db)
	if err := users.InitSchema(ctx); err != nil {
		return err
	}
	if err := outboxStore.InitSchema(ctx); err != nil {
		return err
	}

	tokens := identity.NewTokenIssuer(cfg.JWTSecret, 24*time.Hour)
	service := identity.NewService(db, users, outboxStore, tokens, logger)

	// The broker being down must not block registrations: events stay
	// staged in the outbox and the service reports itself degraded.
	var broker identity.BrokerStatus = brokerDown{}
	publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, "identity-service", logging.NewWatermillAdapter(logger))
	if err != nil {
		logger.Error("kafka publisher unavailable, running degraded", "error", err)
	} else {
		defer publisher.Close()
		drainer := outbox.NewDrainer(outboxStore, events.NewProducer(publisher), logger, outbox.DrainerOptions{})
		defer startDrainer(ctx, drainer)()
		broker = drainer
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           identity.NewHandler(service, tokens, broker, logger, cfg.Development),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("identity listening", "port", cfg.Port)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
