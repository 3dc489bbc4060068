package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// changeEvent is a document change relayed through Kafka, e.g. by a CDC
// pipeline in front of the document store.
type changeEvent struct {
	Trigger string         `json:"trigger"`
	Id      string         `json:"id"`
	Event   FirestoreEvent `json:"event"`
}

// fetchRetryDelay is the pause after a failed fetch before the next attempt.
var fetchRetryDelay = 2 * time.Second

// changeEventReader is the subset of *kafka.Reader the consumer uses.
type changeEventReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newChangeEventReader(cfg Config) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.KafkaBrokers,
		GroupID: cfg.KafkaGroupID,
		Topic:   cfg.KafkaTopic,
	})
}

// consumeChangeEvents dispatches change events until ctx is cancelled. Each
// message is committed after it has been handled, including messages that
// could not be decoded.
func (h *Handlers) consumeChangeEvents(ctx context.Context, r changeEventReader, logger zerolog.Logger) {
	log := logger.With().Str("component", "kafka_consumer").Logger()

	defer func() {
		if err := r.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close reader")
		}
	}()

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if err == io.EOF || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				log.Info().Err(err).Msg("change event consumer stopped")
				return
			}
			log.Error().Err(err).Msg("could not read message")
			select {
			case <-ctx.Done():
				return
			case <-time.After(fetchRetryDelay):
			}
			continue
		}

		var ev changeEvent
		if err := json.Unmarshal(m.Value, &ev); err != nil {
			log.Warn().Err(err).Int64("offset", m.Offset).Int("partition", m.Partition).Msg("dropping undecodable change event")
		} else if err := h.dispatchEvent(ctx, ev.Trigger, ev.Id, ev.Event); err != nil {
			log.Warn().Err(err).Int64("offset", m.Offset).Msg("dropping malformed change event")
		}

		if err := r.CommitMessages(ctx, m); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("failed to commit message")
		}
	}
}
