// Package broadcast publishes executed trades to Kafka so downstream
// consumers (settlement, analytics) see the tape without polling the API.
package broadcast

import (
	"context"
	"encoding/json"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/birzha-dev/birzha/pkg/exchange/engine"
)

// Broadcaster publishes trade events to a single Kafka topic, keyed by
// ticker so per-instrument ordering is preserved across partitions.
type Broadcaster struct {
	producer sarama.SyncProducer
	topic    string
	log      *zap.SugaredLogger
	events   chan engine.Trade
}

type tradeEvent struct {
	V         int    `json:"v"`
	Type      string `json:"type"`
	Ticker    string `json:"ticker"`
	Qty       int64  `json:"amount"`
	Price     int64  `json:"price"`
	Timestamp int64  `json:"timestamp"`
}

func New(brokers []string, topic string, log *zap.SugaredLogger) (*Broadcaster, error) {
	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, err
	}

	return &Broadcaster{
		producer: producer,
		topic:    topic,
		log:      log,
		events:   make(chan engine.Trade, 1024),
	}, nil
}

// Publish enqueues a trade for delivery. Never blocks the matching path; if
// the buffer is full the event is dropped and counted in the log.
func (b *Broadcaster) Publish(t engine.Trade) {
	select {
	case b.events <- t:
	default:
		b.log.Warnw("trade_event_dropped", "ticker", t.Ticker)
	}
}

// Run drains the event buffer until ctx is cancelled.
func (b *Broadcaster) Run(ctx context.Context) {
	b.log.Infow("broadcaster_started", "topic", b.topic)
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-b.events:
			b.send(t)
		}
	}
}

func (b *Broadcaster) send(t engine.Trade) {
	payload, err := json.Marshal(tradeEvent{
		V:         1,
		Type:      "trade",
		Ticker:    t.Ticker,
		Qty:       t.Qty,
		Price:     t.Price,
		Timestamp: t.Timestamp.UnixMilli(),
	})
	if err != nil {
		b.log.Errorw("trade_event_marshal_failed", "err", err)
		return
	}

	msg := &sarama.ProducerMessage{
		Topic: b.topic,
		Key:   sarama.StringEncoder(t.Ticker),
		Value: sarama.ByteEncoder(payload),
	}
	partition, offset, err := b.producer.SendMessage(msg)
	if err != nil {
		b.log.Errorw("trade_event_publish_failed", "ticker", t.Ticker, "err", err)
		return
	}
	b.log.Debugw("trade_event_published",
		"ticker", t.Ticker, "partition", partition, "offset", offset)
}

func (b *Broadcaster) Close() error {
	return b.producer.Close()
}
