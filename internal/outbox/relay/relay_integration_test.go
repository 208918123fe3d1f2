//go:build integration

package relay_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"geoscore/internal/outbox/models"
	"geoscore/internal/outbox/relay"
	"geoscore/internal/outbox/store"
	"geoscore/internal/platform/kafka"
	"geoscore/pkg/platform/tx"
	"geoscore/pkg/testutil/containers"
)

type RelayIntegrationSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	store    *store.PostgresStore
	producer *kafka.Producer
	topic    string
}

func TestRelayIntegrationSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelayIntegrationSuite))
}

func (s *RelayIntegrationSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
	s.topic = "geoscore.claims." + uuid.NewString()[:8]

	producer, err := kafka.NewProducer(s.redpanda.Brokers, s.topic)
	s.Require().NoError(err)
	s.Require().NoError(producer.EnsureTopic(context.Background(), 1, 1))
	s.producer = producer
}

func (s *RelayIntegrationSuite) TearDownSuite() {
	if s.producer != nil {
		s.producer.Close()
	}
}

func (s *RelayIntegrationSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelayIntegrationSuite) TestRelaysCommittedEventsToKafka() {
	ctx := context.Background()
	evt, err := models.NewEvent(models.AggregateClaim, "7", models.EventClaimConfirmed,
		models.ClaimConfirmed{ClaimID: 7, UserAddress: "0xa", Score: "42"}, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(ctx, evt))

	r := relay.New(s.store, tx.NewPostgresRunner(s.postgres.DB), relay.NewKafkaPublisher(s.producer),
		relay.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	n, err := r.Drain(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	backlog, err := s.store.CountUnpublished(ctx)
	s.Require().NoError(err)
	s.Zero(backlog)

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(s.topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	var record *kgo.Record
	for record == nil && pollCtx.Err() == nil {
		fetches := consumer.PollFetches(pollCtx)
		fetches.EachRecord(func(r *kgo.Record) {
			if record == nil {
				record = r
			}
		})
	}
	s.Require().NotNil(record, "no record consumed")
	s.Equal("claim:7", string(record.Key))

	var payload models.ClaimConfirmed
	s.Require().NoError(json.Unmarshal(record.Value, &payload))
	s.Equal(int64(7), payload.ClaimID)
	s.Equal("42", payload.Score)
}

func (s *RelayIntegrationSuite) TestRolledBackEventsAreNeverRelayed() {
	ctx := context.Background()
	runner := tx.NewPostgresRunner(s.postgres.DB)

	_ = runner.RunInTx(ctx, func(ctx context.Context) error {
		evt, err := models.NewEvent(models.AggregateClaim, "8", models.EventClaimConfirmed, models.ClaimConfirmed{ClaimID: 8}, time.Now())
		s.Require().NoError(err)
		s.Require().NoError(s.store.Append(ctx, evt))
		return context.Canceled
	})

	backlog, err := s.store.CountUnpublished(ctx)
	s.Require().NoError(err)
	s.Zero(backlog)
}
