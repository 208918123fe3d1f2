package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"geoscore/internal/outbox/relay"
	outboxstore "geoscore/internal/outbox/store"
	"geoscore/internal/platform/kafka"
	"geoscore/pkg/platform/tx"
)

var outboxCmd = &cobra.Command{
	Use:   "outbox",
	Short: "Inspect and relay confirmation events",
}

var outboxDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Publish every pending outbox event to Kafka once and exit",
	Args:  cobra.NoArgs,
	RunE:  runOutboxDrain,
}

func runOutboxDrain(cmd *cobra.Command, _ []string) error {
	ctx, cancel := withTimeout(cmd)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if len(cfg.Kafka.Brokers) == 0 {
		return errors.New("no brokers configured: set KAFKA_BROKERS")
	}
	producer, err := kafka.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	if err != nil {
		return err
	}
	defer producer.Close()

	r := relay.New(outboxstore.NewPostgres(db), tx.NewPostgresRunner(db), relay.NewKafkaPublisher(producer),
		relay.WithBatchSize(cfg.Kafka.RelayBatchSize),
		relay.WithLogger(commandLogger(cmd)),
	)
	n, err := r.Drain(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "published %d events\n", n)
	return nil
}
