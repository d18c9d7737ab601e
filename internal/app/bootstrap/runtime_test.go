package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	appconfig "github.com/wolfman30/therapy-scheduler/internal/config"
	"github.com/wolfman30/therapy-scheduler/internal/events"
	"github.com/wolfman30/therapy-scheduler/internal/scheduling"
	"github.com/wolfman30/therapy-scheduler/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without REDIS_ADDR")
	}
	if client := BuildRedisClient(context.Background(), nil, nil, false); client != nil {
		t.Fatalf("expected nil client for nil config")
	}
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr(), BookingAttemptsPerHour: 2}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	defer client.Close()
	if err := (RedisPinger{Client: client}).Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	checker := BuildVelocityChecker(client, cfg, logging.New("error"))
	for i := 0; i < 2; i++ {
		if res, _ := checker.CheckBooking(context.Background(), "p-1"); !res.Allowed {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
	}
	if res, _ := checker.CheckBooking(context.Background(), "p-1"); res.Allowed {
		t.Fatalf("expected third attempt blocked with configured limit")
	}

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client once redis is down")
	}
	if BuildVelocityChecker(nil, cfg, nil) != nil {
		t.Fatalf("expected no checker without redis")
	}
}

func TestBuildStorageInMemory(t *testing.T) {
	storage, err := BuildStorage(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("BuildStorage: %v", err)
	}
	defer storage.Close()
	if _, ok := storage.Store.(*scheduling.MemoryStore); !ok {
		t.Fatalf("expected memory store, got %T", storage.Store)
	}
	if storage.Outbox == nil || storage.Pool != nil {
		t.Fatalf("expected memory outbox and no pool")
	}
}

func TestBuildStorageRejectsBadURL(t *testing.T) {
	cfg := &appconfig.Config{DatabaseURL: "postgres://%zz"}
	if _, err := BuildStorage(context.Background(), cfg, logging.New("error")); err == nil {
		t.Fatalf("expected parse error")
	}
	if _, err := BuildStorage(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}
}

func TestBuildDeliveryHandler(t *testing.T) {
	handler, err := BuildDeliveryHandler(&appconfig.Config{}, nil, logging.New("error"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := handler.(*events.LogHandler); !ok {
		t.Fatalf("expected log handler, got %T", handler)
	}

	cfg := &appconfig.Config{EventsQueueURL: "https://sqs.us-east-1.amazonaws.com/1/events"}
	if _, err := BuildDeliveryHandler(cfg, nil, nil); err == nil {
		t.Fatalf("expected error without SQS client")
	}
	client := sqs.NewFromConfig(aws.Config{Region: "us-east-1"})
	handler, err = BuildDeliveryHandler(cfg, client, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := handler.(*events.SQSPublisher); !ok {
		t.Fatalf("expected SQS publisher, got %T", handler)
	}
}

func TestBuildDelivererDrainsMemoryOutbox(t *testing.T) {
	storage, err := BuildStorage(context.Background(), &appconfig.Config{}, logging.New("error"))
	if err != nil {
		t.Fatalf("BuildStorage: %v", err)
	}
	opts := scheduling.Options{
		Now:    func() time.Time { return time.Date(2030, time.January, 1, 8, 0, 0, 0, time.UTC) },
		Logger: logging.New("error"),
	}
	_, err = scheduling.NewRuleService(storage.Store, opts).AddRule(context.Background(), scheduling.RuleInput{
		TherapistID: "t-1",
		DayOfWeek:   scheduling.Monday,
		StartTime:   scheduling.MustParseTimeOfDay("09:00"),
		EndTime:     scheduling.MustParseTimeOfDay("10:00"),
	})
	if err != nil {
		t.Fatalf("AddRule: %v", err)
	}

	cfg := &appconfig.Config{OutboxPollInterval: time.Second, OutboxBatchSize: 10}
	d := BuildDeliverer(storage, events.NewLogHandler(logging.New("error")), cfg, logging.New("error"))
	if n := d.Drain(context.Background()); n != 1 {
		t.Fatalf("expected 1 delivered event, got %d", n)
	}
	if n := d.Drain(context.Background()); n != 0 {
		t.Fatalf("expected outbox empty after delivery, got %d", n)
	}
}
