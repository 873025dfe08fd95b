package report

import (
	"context"

	"github.com/Adithya-Monish-Kumar-K/termindex/pkg/kafka"
)

// Publisher is the subset of kafka.Producer used to announce builds.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// KafkaAnnouncer publishes each finished build as an event keyed by build id.
type KafkaAnnouncer struct {
	pub Publisher
}

func NewKafkaAnnouncer(pub Publisher) *KafkaAnnouncer {
	return &KafkaAnnouncer{pub: pub}
}

func (a *KafkaAnnouncer) Announce(ctx context.Context, r Report) error {
	return a.pub.Publish(ctx, kafka.Event{Key: r.BuildID, Value: r})
}
