package cart

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmmetrics "github.com/ThreeDotsLabs/watermill/components/metrics"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/message/router/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/shopmesh/shopmesh/internal/events"
	"github.com/shopmesh/shopmesh/internal/jsoncodec"
	"github.com/shopmesh/shopmesh/internal/metrics"
)

// UnprocessableEventError marks a message that will never succeed no
// matter how often it is retried: malformed payload, missing owner id.
// The poison queue filter routes these to the dead-letter topic instead
// of retrying.
type UnprocessableEventError struct {
	payload []byte
	err     error
}

func (e *UnprocessableEventError) Error() string {
	return fmt.Sprintf("unprocessable event %q: %v", e.payload, e.err)
}

func (e *UnprocessableEventError) Unwrap() error { return e.err }

// IsUnprocessable is the poison queue filter.
func IsUnprocessable(err error) bool {
	var unprocessable *UnprocessableEventError
	return errors.As(err, &unprocessable)
}

// Consumer handles registration events.
type Consumer struct {
	store  *Store
	logger *slog.Logger
}

func NewConsumer(store *Store, logger *slog.Logger) *Consumer {
	return &Consumer{store: store, logger: logger}
}

// Handle provisions a cart for the registered user. Safe under
// redelivery: the insert is idempotent per owner.
func (c *Consumer) Handle(msg *message.Message) error {
	var event events.UserRegistered
	if err := jsoncodec.Unmarshal(msg.Payload, &event); err != nil {
		return &UnprocessableEventError{payload: msg.Payload, err: err}
	}
	if event.ID == "" {
		return &UnprocessableEventError{payload: msg.Payload, err: fmt.Errorf("missing user id")}
	}

	created, err := c.store.ProvisionForOwner(msg.Context(), event.ID)
	if err != nil {
		// Store errors are transient from here; the retry middleware
		// owns backoff and the broker redelivers on give-up.
		return err
	}

	correlationID := msg.Metadata.Get(events.MetadataCorrelationID)
	if !created {
		metrics.CartDuplicateEvents.Inc()
		c.logger.Debug("cart already provisioned, skipping",
			"owner_id", event.ID,
			"correlation_id", correlationID)
		return nil
	}

	metrics.CartProvisioned.Inc()
	c.logger.Info("cart provisioned",
		"owner_id", event.ID,
		"username", event.Username,
		"correlation_id", correlationID)
	return nil
}

// logMiddleware records every processed message at debug level.
func (c *Consumer) logMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		c.logger.Debug("processing message",
			"message_uuid", msg.UUID,
			"metadata", msg.Metadata)
		return h(msg)
	}
}

// tracerMiddleware wraps message handling in an OpenTelemetry span so
// consumption links up with the producing request's trace.
func tracerMiddleware(h message.HandlerFunc) message.HandlerFunc {
	return func(msg *message.Message) ([]*message.Message, error) {
		tracer := otel.Tracer("cart-consumer")
		ctx, span := tracer.Start(msg.Context(), "ProvisionCart",
			trace.WithSpanKind(trace.SpanKindConsumer))
		defer span.End()
		msg.SetContext(ctx)

		span.SetAttributes(
			attribute.String("message.uuid", msg.UUID),
			attribute.String("message.correlation_id", msg.Metadata.Get(events.MetadataCorrelationID)),
		)
		return h(msg)
	}
}

// RouterOptions tune the consumer pipeline; zero values get defaults.
// MetricsRegisterer is optional; when set, watermill handler metrics are
// registered there.
type RouterOptions struct {
	MaxRetries        int
	InitialInterval   time.Duration
	MaxInterval       time.Duration
	MetricsRegisterer prometheus.Registerer
}

func (o RouterOptions) withDefaults() RouterOptions {
	if o.MaxRetries <= 0 {
		o.MaxRetries = 5
	}
	if o.InitialInterval <= 0 {
		o.InitialInterval = time.Second
	}
	if o.MaxInterval <= 0 {
		o.MaxInterval = 16 * time.Second
	}
	return o
}

// NewRouter wires the consumer into a watermill router with the
// standard pipeline: correlation id, retry with backoff for transient
// failures, dead-lettering for unprocessable messages, panic recovery.
func NewRouter(
	subscriber message.Subscriber,
	publisher message.Publisher,
	consumer *Consumer,
	wmLogger watermill.LoggerAdapter,
	opts RouterOptions,
) (*message.Router, error) {
	opts = opts.withDefaults()

	router, err := message.NewRouter(message.RouterConfig{}, wmLogger)
	if err != nil {
		return nil, fmt.Errorf("build consumer router: %w", err)
	}

	poison, err := middleware.PoisonQueueWithFilter(publisher, events.TopicUserRegisteredDeadLetter, IsUnprocessable)
	if err != nil {
		return nil, fmt.Errorf("build poison queue: %w", err)
	}

	if opts.MetricsRegisterer != nil {
		builder := wmmetrics.NewPrometheusMetricsBuilder(opts.MetricsRegisterer, "shopmesh", "cart")
		builder.AddPrometheusRouterMetrics(router)
	}

	router.AddMiddleware(
		middleware.CorrelationID,
		consumer.logMiddleware,
		tracerMiddleware,
		middleware.Retry{
			MaxRetries:      opts.MaxRetries,
			InitialInterval: opts.InitialInterval,
			MaxInterval:     opts.MaxInterval,
			Multiplier:      2,
			Logger:          wmLogger,
		}.Middleware,
		poison,
		middleware.Recoverer,
	)

	router.AddNoPublisherHandler(
		"cart_provisioner",
		events.TopicUserRegistered,
		subscriber,
		consumer.Handle,
	)
	return router, nil
}
