// Package events provides a Kafka publisher for ingest-run completion events.
// Publishing is best effort: a full queue or broker outage never affects the
// run outcome.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// RunEvent is emitted once per completed ingest run, after the audit record.
type RunEvent struct {
	RunID         string    `json:"run_id"`
	AreaID        string    `json:"area_id"`
	Status        string    `json:"status"`
	HoursIngested int       `json:"hours_ingested"`
	DQFlags       []string  `json:"dq_flags,omitempty"`
	TS            time.Time `json:"ts"`
}

type Publisher struct {
	topic   string
	events  chan RunEvent
	prod    sarama.AsyncProducer
	log     *slog.Logger
	stopped chan struct{}
}

func NewPublisher(brokers, topic string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(strings.Split(brokers, ","), cfg)
	if err != nil {
		return nil, fmt.Errorf("events: create async producer: %w", err)
	}

	p := &Publisher{
		topic:   topic,
		events:  make(chan RunEvent, 64),
		prod:    prod,
		log:     log,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.log.Error("events marshal failed", "error", err)
				continue
			}
			p.prod.Input() <- &sarama.ProducerMessage{
				Topic: p.topic,
				Key:   sarama.StringEncoder(ev.AreaID),
				Value: sarama.ByteEncoder(b),
			}
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.log.Error("events producer error", "error", err)
			}
		}
	}()

	return p, nil
}

// Publish enqueues the event without blocking; a full queue drops it.
func (p *Publisher) Publish(ev RunEvent) {
	select {
	case p.events <- ev:
	default:
	}
}

func (p *Publisher) Close() error {
	close(p.events)
	<-p.stopped
	if err := p.prod.Close(); err != nil {
		return fmt.Errorf("events: close producer: %w", err)
	}
	return nil
}
