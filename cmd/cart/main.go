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
	"github.com/prometheus/client_golang/prometheus"

	"github.com/shopmesh/shopmesh/internal/cart"
	"github.com/shopmesh/shopmesh/internal/config"
	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/identity"
	"github.com/shopmesh/shopmesh/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "cart:", err)
		os.Exit(1)
	}
}

type consumerDown struct{}

func (consumerDown) IsRunning() bool { return false }

func run() error {
	cfg, err := config.LoadCart()
	if err != nil {
		return err
	}
	logger := logging.New("cart", cfg.Development)
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

	store := cart.NewStore(db)
	if err := store.InitSchema(ctx); err != nil {
		return err
	}
	tokens := identity.NewTokenIssuer(cfg.JWTSecret, 24*time.Hour)

	wmLogger := logging.NewWatermillAdapter(logger)

	// The read API stays up when the broker is unreachable; provisioning
	// resumes once the consumer reconnects, earliest offset first.
	var status cart.BrokerStatus = consumerDown{}
	subscriber, err := events.NewKafkaSubscriber(cfg.KafkaBrokers, cfg.ConsumerGroup, "cart-service", wmLogger)
	if err != nil {
		logger.Error("kafka subscriber unavailable, running degraded", "error", err)
	} else {
		publisher, err := events.NewKafkaPublisher(cfg.KafkaBrokers, "cart-service", wmLogger)
		if err != nil {
			return fmt.Errorf("dead letter publisher: %w", err)
		}
		defer publisher.Close()

		router, err := cart.NewRouter(subscriber, publisher, cart.NewConsumer(store, logger), wmLogger, cart.RouterOptions{
			MetricsRegisterer: prometheus.DefaultRegisterer,
		})
		if err != nil {
			return err
		}
		go func() {
			if err := router.Run(ctx); err != nil {
				logger.Error("consumer stopped", "error", err)
			}
		}()
		defer router.Close()
		status = router
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           cart.NewHandler(store, tokens, status, logger, cfg.Development),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("cart listening", "port", cfg.Port)
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
