package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/JakeFAU/comic-archiver/internal/comics"
	"github.com/JakeFAU/comic-archiver/internal/progress"
)

// CompletionMessage is the payload published for each archived strip.
type CompletionMessage struct {
	RunID     string    `json:"run_id"`
	Date      string    `json:"date"`
	ImagePath string    `json:"image_path"`
	Outcome   string    `json:"outcome"`
	Timestamp time.Time `json:"ts"`
}

// PublisherSink announces newly completed strips on a topic.
type PublisherSink struct {
	publisher comics.Publisher
	topic     string
}

// NewPublisherSink validates its inputs and returns a sink.
func NewPublisherSink(publisher comics.Publisher, topic string) (*PublisherSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if topic == "" {
		return nil, fmt.Errorf("pubsub.topic_name is required")
	}
	return &PublisherSink{publisher: publisher, topic: topic}, nil
}

// Consume publishes one message per completed item. Other outcomes are
// ignored since nothing new was archived.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		if evt.Stage != progress.StageItemDone || evt.Outcome != comics.ItemCompleted {
			continue
		}
		date, err := comics.ParseDate(evt.Date)
		if err != nil {
			return fmt.Errorf("publish %s: %w", evt.Date, err)
		}
		msg := CompletionMessage{
			RunID:     evt.RunUUID().String(),
			Date:      evt.Date,
			ImagePath: comics.AssetPath(date),
			Outcome:   string(evt.Outcome),
			Timestamp: evt.TS,
		}
		if _, err := s.publisher.Publish(ctx, s.topic, msg); err != nil {
			return fmt.Errorf("publish %s: %w", evt.Date, err)
		}
	}
	return nil
}

// Close implements progress.Sink.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
