package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"DexSignal/internal/domain/models"
	drepo "DexSignal/internal/domain/repository"
	"DexSignal/pkg/logger"
)

// ArchiveSink accepts analytics rows without blocking.
type ArchiveSink interface {
	Enqueue(row models.ArchiveRow) error
}

// Broadcaster fans events out to live subscribers.
type Broadcaster interface {
	Broadcast(ev models.Event)
}

// Notifier fans the results of the cycles out to the message bus, the
// analytics archive and the live subscribers. Every output is optional and
// a failing one never fails the caller.
type Notifier struct {
	history   *HistoryStore
	publisher drepo.EventPublisher
	archive   ArchiveSink
	hubs      []Broadcaster
	log       *logger.Logger
	now       func() time.Time
}

type NotifierOption func(*Notifier)

func WithEventPublisher(p drepo.EventPublisher) NotifierOption {
	return func(n *Notifier) { n.publisher = p }
}

func WithArchiveSink(a ArchiveSink) NotifierOption {
	return func(n *Notifier) { n.archive = a }
}

func WithBroadcaster(b Broadcaster) NotifierOption {
	return func(n *Notifier) { n.hubs = append(n.hubs, b) }
}

func WithNotifierLogger(l *logger.Logger) NotifierOption {
	return func(n *Notifier) { n.log = l }
}

func WithNotifierClock(now func() time.Time) NotifierOption {
	return func(n *Notifier) { n.now = now }
}

func NewNotifier(history *HistoryStore, opts ...NotifierOption) *Notifier {
	n := &Notifier{history: history, log: logger.NewNop(), now: time.Now}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tick archives a fresh market snapshot.
func (n *Notifier) Tick(_ context.Context, s *models.MarketSnapshot) {
	n.archiveRow(models.TickRow(s, n.now()))
}

// ForecastGenerated archives and publishes a forecast.
func (n *Notifier) ForecastGenerated(ctx context.Context, f models.ForecastResult) {
	if f.CombinedPrediction != nil {
		n.archiveRow(models.ForecastRow(f))
	}
	n.publish(ctx, models.EventForecastGenerated, f.PairAddress, f)
}

// SignalEmitted publishes the new signal of a pair.
func (n *Notifier) SignalEmitted(ctx context.Context, s models.PairSignal) {
	n.publish(ctx, models.EventSignalEmitted, s.PairAddress, s)
}

// HandleOutcome is a monitor outcome sink. It writes the outcome into the
// target history of the pair and fans it out.
func (n *Notifier) HandleOutcome(ctx context.Context, o models.Outcome) {
	if n.history != nil {
		if err := n.history.ResolveTarget(ctx, o.PairAddress, o); err != nil {
			n.log.Warn("resolve target history failed", logger.Pair(o.PairAddress), logger.Error(err))
		}
	}
	n.archiveRow(models.OutcomeRow(o))
	n.publish(ctx, models.EventOutcomeRecorded, o.PairAddress, o)
}

// TargetSuperseded reports an unresolved target replaced by a newer window.
func (n *Notifier) TargetSuperseded(ctx context.Context, prev models.MonitorState) {
	n.publish(ctx, models.EventTargetSuperseded, prev.PairAddress, prev)
}

func (n *Notifier) publish(ctx context.Context, typ models.EventType, pair string, payload interface{}) {
	ev := models.Event{
		ID:          uuid.New().String(),
		Type:        typ,
		PairAddress: pair,
		OccurredAt:  n.now().UTC(),
		Payload:     payload,
	}
	for _, h := range n.hubs {
		h.Broadcast(ev)
	}
	if n.publisher == nil {
		return
	}
	if err := n.publisher.Publish(ctx, ev); err != nil {
		n.log.Warn("publish event failed", logger.Pair(pair), logger.String("type", string(typ)), logger.Error(err))
	}
}

func (n *Notifier) archiveRow(row models.ArchiveRow) {
	if n.archive == nil {
		return
	}
	if err := n.archive.Enqueue(row); err != nil {
		n.log.Debug("archive row rejected", logger.Pair(row.PairAddress), logger.String("kind", string(row.Kind)), logger.Error(err))
	}
}
