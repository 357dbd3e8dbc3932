package cart

import (
	"context"
	"database/sql"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/shopmesh/shopmesh/internal/events"
)

func startConsumer(t *testing.T, db *sql.DB) (*gochannel.GoChannel, context.CancelFunc) {
	t.Helper()

	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	consumer := NewConsumer(NewStore(db), slog.New(slog.DiscardHandler))

	router, err := NewRouter(pubSub, pubSub, consumer, watermill.NopLogger{}, RouterOptions{
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
	})
	if err != nil {
		t.Fatalf("build router: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = router.Run(ctx) }()
	<-router.Running()

	t.Cleanup(func() {
		cancel()
		router.Close()
	})
	return pubSub, cancel
}

func waitForExpectations(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if mock.ExpectationsWereMet() == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expectations not met: %v", mock.ExpectationsWereMet())
}

func TestConsumerProvisionsCartFromEvent(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	pubSub, _ := startConsumer(t, db)

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"id":"user-1","email":"a@b.co","username":"a","role":"user"}`))
	if err := pubSub.Publish(events.TopicUserRegistered, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitForExpectations(t, mock)
}

func TestConsumerIdempotentOnRedelivery(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO carts")).
		WithArgs(sqlmock.AnyArg(), "user-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	pubSub, _ := startConsumer(t, db)

	payload := []byte(`{"id":"user-1","email":"a@b.co","username":"a","role":"user"}`)
	for i := 0; i < 2; i++ {
		msg := message.NewMessage(watermill.NewUUID(), payload)
		if err := pubSub.Publish(events.TopicUserRegistered, msg); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	waitForExpectations(t, mock)
}

func TestConsumerDeadLettersMalformedPayload(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	pubSub, _ := startConsumer(t, db)

	dlq, err := pubSub.Subscribe(context.Background(), events.TopicUserRegisteredDeadLetter)
	if err != nil {
		t.Fatalf("subscribe dlq: %v", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(`not json`))
	if err := pubSub.Publish(events.TopicUserRegistered, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case poisoned := <-dlq:
		poisoned.Ack()
	case <-time.After(3 * time.Second):
		t.Fatalf("malformed payload never reached the dead-letter topic")
	}

	// The store must never have been touched.
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected store activity: %v", err)
	}
}

func TestConsumerDeadLettersMissingOwnerID(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	pubSub, _ := startConsumer(t, db)

	dlq, err := pubSub.Subscribe(context.Background(), events.TopicUserRegisteredDeadLetter)
	if err != nil {
		t.Fatalf("subscribe dlq: %v", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), []byte(`{"email":"a@b.co"}`))
	if err := pubSub.Publish(events.TopicUserRegistered, msg); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case poisoned := <-dlq:
		poisoned.Ack()
	case <-time.After(3 * time.Second):
		t.Fatalf("event without owner id never reached the dead-letter topic")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected store activity: %v", err)
	}
}
