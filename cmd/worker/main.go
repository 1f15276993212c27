// Worker relays proctoring lifecycle events from Kafka to Loki.
// Set KAFKA_BROKERS, PROCTORING_KAFKA_TOPIC, KAFKA_GROUP_ID, and LOKI_URL.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"

	"ihire-proctoring/backend/internal/config"
	"ihire-proctoring/backend/internal/telemetry/loki"
	"ihire-proctoring/backend/internal/telemetry/relay"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	brokers := cfg.KafkaBrokersList()
	if len(brokers) == 0 || cfg.KafkaTopic == "" {
		log.Fatal("worker: KAFKA_BROKERS and PROCTORING_KAFKA_TOPIC are required")
	}
	client, err := loki.NewClient(cfg.LokiURL, nil)
	if err != nil {
		log.Fatalf("worker: %v", err)
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    cfg.KafkaTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  500 * time.Millisecond,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Printf("worker: close reader: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker: relaying %s (group %s) to %s", cfg.KafkaTopic, cfg.KafkaGroupID, cfg.LokiURL)
	if err := relay.New(reader, client, relay.Options{}).Run(ctx); err != nil {
		log.Printf("worker: %v", err)
	}
	log.Println("worker: stopped")
}
