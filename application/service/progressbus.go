package service

import (
	"log/slog"
	"sync"
	"time"

	"github.com/personalrag/ragengine/domain/progress"
)

// subscriberBuffer bounds how many undelivered events a single
// subscriber channel holds before the Progress Bus starts dropping its
// events, per the broadcast/drop-on-slow-subscriber design (spec §9).
const subscriberBuffer = 32

// publishCooldown is the minimum interval between cooldown-gated
// projections (SyncLog row updates, log lines) for the same scope id.
// The in-process broadcast to live subscribers is never gated; only the
// durable/logged side effects are, per SPEC_FULL §3's carried-over
// worker-tracker cooldown idea.
const publishCooldown = time.Second

// ProgressBus is the in-process publish/subscribe hub fanning Ingestion
// Coordinator, Embedding Pipeline, and RAG Pipeline stage updates out to
// push-channel clients (spec §4.L). One sender, many receivers; a
// subscriber that falls behind has events dropped for it rather than
// blocking the publisher.
type ProgressBus struct {
	mu          sync.Mutex
	subscribers map[string]map[chan progress.Event]struct{} // userID -> set of channels
	allSubs     map[chan progress.Event]struct{}            // subscribers with no user filter
	logger      *slog.Logger

	cooldownMu sync.Mutex
	lastLogged map[string]time.Time // scope id -> last time a durable projection ran
}

// NewProgressBus creates an empty hub.
func NewProgressBus(logger *slog.Logger) *ProgressBus {
	return &ProgressBus{
		subscribers: make(map[string]map[chan progress.Event]struct{}),
		allSubs:     make(map[chan progress.Event]struct{}),
		logger:      logger,
		lastLogged:  make(map[string]time.Time),
	}
}

// Subscribe registers a new subscriber and returns its event channel
// plus an unsubscribe function. An empty userID subscribes to every
// user's events; non-empty scopes to that user's events only, per the
// push-channel-edge filtering design (spec §9).
func (b *ProgressBus) Subscribe(userID string) (<-chan progress.Event, func()) {
	ch := make(chan progress.Event, subscriberBuffer)

	b.mu.Lock()
	if userID == "" {
		b.allSubs[ch] = struct{}{}
	} else {
		set, ok := b.subscribers[userID]
		if !ok {
			set = make(map[chan progress.Event]struct{})
			b.subscribers[userID] = set
		}
		set[ch] = struct{}{}
	}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if userID == "" {
			delete(b.allSubs, ch)
		} else if set, ok := b.subscribers[userID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(b.subscribers, userID)
			}
		}
		close(ch)
	}

	return ch, unsubscribe
}

// Publish broadcasts an event to every subscriber whose filter matches.
// Delivery is best-effort: a channel with a full buffer has the event
// dropped for it rather than blocking the publisher or other
// subscribers.
func (b *ProgressBus) Publish(e progress.Event) {
	if e.Timestamp == 0 {
		e.Timestamp = timeNowUnixNano()
	}

	b.mu.Lock()
	targets := make([]chan progress.Event, 0, len(b.allSubs)+4)
	for ch := range b.allSubs {
		targets = append(targets, ch)
	}
	if e.UserID != "" {
		for ch := range b.subscribers[e.UserID] {
			targets = append(targets, ch)
		}
	}
	b.mu.Unlock()

	for _, ch := range targets {
		select {
		case ch <- e:
		default:
			b.logger.Debug("progress bus dropped event for slow subscriber",
				slog.String("topic", string(e.Topic)),
				slog.String("scope_id", e.ScopeID),
			)
		}
	}
}

// ShouldLog reports whether a durable/logged projection for scopeID may
// run now, gating to at most once per publishCooldown so high-frequency
// per-document progress doesn't thrash the DB or the log. The in-process
// broadcast above is unaffected by this gate.
func (b *ProgressBus) ShouldLog(scopeID string) bool {
	now := time.Now()

	b.cooldownMu.Lock()
	defer b.cooldownMu.Unlock()

	last, ok := b.lastLogged[scopeID]
	if ok && now.Sub(last) < publishCooldown {
		return false
	}
	b.lastLogged[scopeID] = now
	return true
}

// timeNowUnixNano is split out so tests can stamp deterministic events
// by constructing progress.Event directly with Timestamp already set.
func timeNowUnixNano() int64 {
	return time.Now().UnixNano()
}
