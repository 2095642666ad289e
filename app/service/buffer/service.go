package buffer

import (
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"barberbot/app/config"
	"barberbot/app/domain"
	"barberbot/app/service/queue"
	"barberbot/app/util/clock"

	"github.com/samber/do"
	"github.com/samber/oops"
)

type Mode string

const (
	// ModeReplace keeps only the most recent message of a burst.
	ModeReplace Mode = "replace"
	// ModeConcat joins every message of a burst in arrival order.
	ModeConcat Mode = "concat"
)

// FlushFunc receives a coalesced unit once its conversation has been quiet for
// the whole window. It is called outside of the store lock.
type FlushFunc func(unit domain.BufferedUnit)

type Options struct {
	Window      time.Duration
	Mode        Mode
	StaleFactor float64
}

var _ do.Shutdownable = (*Store)(nil)

// Store owns the per-conversation debounce buffers. Every read-modify-write of
// an entry happens under mu and no I/O is performed while holding it.
type Store struct {
	clock      clock.Clock
	window     time.Duration
	staleAfter time.Duration
	mode       Mode
	onFlush    FlushFunc

	mu      sync.Mutex
	entries map[domain.ConversationKey]*entry
	stopped bool

	// generation is shared by all entries so that a timer scheduled for a
	// swept entry can never match the entry that replaces it.
	generation uint64
}

type entry struct {
	pending        bool
	pendingParts   []part
	pendingEvent   *domain.InboundEvent
	lastActivityAt time.Time
	timer          *clock.Timer

	// generation changes on every ingest and flush. A timer only flushes
	// the entry if the generation it was scheduled with is still current.
	generation uint64
}

// part is one buffered message. Parts are kept in send order, which can
// differ from arrival order when a voice note is transcribed slowly.
type part struct {
	text  string
	event *domain.InboundEvent
}

func New(di *do.Injector) (*Store, error) {
	cfg := do.MustInvoke[*config.Config](di)
	queueSvc := do.MustInvoke[*queue.Service](di)

	return NewStore(clock.Real(), Options{
		Window:      cfg.Debounce.Window,
		Mode:        Mode(cfg.Debounce.Mode),
		StaleFactor: cfg.Debounce.StaleFactor,
	}, queueSvc.Push), nil
}

func NewStore(clk clock.Clock, opts Options, onFlush FlushFunc) *Store {
	if opts.Mode == "" {
		opts.Mode = ModeReplace
	}
	if opts.StaleFactor < 1 {
		opts.StaleFactor = 2
	}

	return &Store{
		clock:      clk,
		window:     opts.Window,
		staleAfter: time.Duration(float64(opts.Window) * opts.StaleFactor),
		mode:       opts.Mode,
		onFlush:    onFlush,
		entries:    make(map[domain.ConversationKey]*entry),
	}
}

// Ingest buffers text for key and restarts the inactivity window. Any
// previously scheduled flush for key is cancelled first, so at most one timer
// is outstanding per conversation.
func (s *Store) Ingest(key domain.ConversationKey, text string, event *domain.InboundEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		slog.Warn("Dropping message, buffer store is stopped", "conversation", key)
		return
	}

	e, ok := s.entries[key]
	if !ok {
		e = &entry{}
		s.entries[key] = e
	}

	// a message sent before the newest buffered one still restarts the
	// window but must not take its place
	older := e.pending && event.Precedes(e.pendingEvent)

	trimmed := strings.TrimSpace(text)
	switch {
	case s.mode == ModeConcat:
		if trimmed != "" {
			e.pendingParts = insertPart(e.pendingParts, part{text: trimmed, event: event})
		}
	case older:
		slog.Debug("Keeping newer buffered message", "conversation", key)
	default:
		e.pendingParts = nil
		if trimmed != "" {
			e.pendingParts = []part{{text: trimmed, event: event}}
		}
	}

	if !older {
		e.pendingEvent = event
	}
	e.pending = true
	e.lastActivityAt = s.clock.Now()

	e.timer.Stop()
	generation := s.nextGeneration()
	e.generation = generation
	e.timer = s.clock.AfterFunc(s.window, func() {
		s.fire(key, generation)
	})

	slog.Debug("Buffered message",
		"conversation", key,
		"generation", generation,
		"parts", len(e.pendingParts),
	)
}

// Flush drains the buffer of key. It reports false when there is nothing
// pending, e.g. because a concurrent flush already consumed it.
func (s *Store) Flush(key domain.ConversationKey) (domain.BufferedUnit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return domain.BufferedUnit{}, false
	}

	return s.drainLocked(key, e)
}

func (s *Store) drainLocked(key domain.ConversationKey, e *entry) (domain.BufferedUnit, bool) {
	if !e.pending {
		return domain.BufferedUnit{}, false
	}

	texts := make([]string, 0, len(e.pendingParts))
	for _, p := range e.pendingParts {
		texts = append(texts, p.text)
	}

	unit := domain.BufferedUnit{
		Key:        key,
		Text:       strings.Join(texts, "\n"),
		Event:      e.pendingEvent,
		Generation: e.generation,
		FlushedAt:  s.clock.Now(),
	}
	if len(texts) > 0 {
		unit.Parts = texts
	}

	e.timer.Stop()
	e.timer = nil
	e.pending = false
	e.pendingParts = nil
	e.pendingEvent = nil
	e.generation = s.nextGeneration()

	return unit, true
}

func (s *Store) nextGeneration() uint64 {
	s.generation++
	return s.generation
}

// insertPart keeps parts ordered by send time. Messages sent at the same
// moment stay in arrival order.
func insertPart(parts []part, p part) []part {
	i := len(parts)
	for i > 0 && p.event.Precedes(parts[i-1].event) {
		i--
	}
	return slices.Insert(parts, i, p)
}

func (s *Store) fire(key domain.ConversationKey, generation uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.generation != generation {
		s.mu.Unlock()
		slog.Debug("Skipping stale flush", "conversation", key, "generation", generation)
		return
	}
	unit, ok := s.drainLocked(key, e)
	s.mu.Unlock()

	if !ok {
		slog.Debug("Nothing to flush", "conversation", key)
		return
	}

	s.handoff(unit)
}

func (s *Store) handoff(unit domain.BufferedUnit) {
	if s.onFlush == nil {
		return
	}

	err := oops.
		In("buffer").
		With("conversation", unit.Key).
		Recoverf(func() {
			s.onFlush(unit)
		}, "flush handler panicked")
	if err != nil {
		slog.Error("Flush handoff failed", "conversation", unit.Key, "error", err)
	}
}

// Sweep removes entries idle for at least stale_factor * window, cancelling
// any timer they still hold, and returns how many were removed.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.lastActivityAt) < s.staleAfter {
			continue
		}

		if e.pending {
			slog.Warn("Reaping buffer with unflushed message", "conversation", key)
		}

		e.timer.Stop()
		delete(s.entries, key)
		removed++
	}

	return removed
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Now() time.Time {
	return s.clock.Now()
}

// Stop cancels every scheduled flush and rejects further ingests.
func (s *Store) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, e := range s.entries {
		e.timer.Stop()
		e.timer = nil
	}
}

func (s *Store) Shutdown() error {
	s.Stop()
	return nil
}
