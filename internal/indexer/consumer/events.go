package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/lexicon/internal/partition"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/lexicon/pkg/resilience"
)

const (
	EventDumped = "dumped"
	EventMerged = "merged"
)

// PartitionEvent announces a partition that became searchable.
type PartitionEvent struct {
	Type      string    `json:"type"`
	Partition string    `json:"partition"`
	Seq       uint64    `json:"seq"`
	MaxDocID  uint32    `json:"max_doc_id"`
	Live      int       `json:"live"`
	Sources   []uint64  `json:"sources,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher is the producer side the notifier writes to.
type Publisher interface {
	Publish(ctx context.Context, event kafka.Event) error
}

// Notifier publishes partition events. Publishing is retried with backoff
// for at most its timeout and failures are only logged.
type Notifier struct {
	pub     Publisher
	timeout time.Duration
	backoff resilience.Backoff
	logger  *slog.Logger
}

func NewNotifier(pub Publisher) *Notifier {
	return &Notifier{
		pub:     pub,
		timeout: 10 * time.Second,
		backoff: resilience.DefaultBackoff,
		logger:  slog.Default().With("component", "partition-notifier"),
	}
}

// Dumped is an Engine OnCommit hook.
func (n *Notifier) Dumped(p *partition.Partition) {
	n.publish(newEvent(EventDumped, p, nil))
}

// Merged is a Compactor OnMerged hook.
func (n *Notifier) Merged(p *partition.Partition, sources []uint64) {
	n.publish(newEvent(EventMerged, p, sources))
}

func newEvent(typ string, p *partition.Partition, sources []uint64) PartitionEvent {
	return PartitionEvent{
		Type:      typ,
		Partition: partition.Name(p.Seq()),
		Seq:       p.Seq(),
		MaxDocID:  p.MaxDocID(),
		Live:      p.Live(),
		Sources:   sources,
		At:        time.Now().UTC(),
	}
}

func (n *Notifier) publish(ev PartitionEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
	defer cancel()
	err := n.backoff.Retry(ctx, "publish partition event", nil, func(ctx context.Context) error {
		return n.pub.Publish(ctx, kafka.Event{Key: ev.Partition, Value: ev})
	})
	if err != nil {
		n.logger.Error("failed to publish partition event",
			"type", ev.Type,
			"partition", ev.Partition,
			"error", err,
		)
	}
}
