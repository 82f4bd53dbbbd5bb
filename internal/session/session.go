package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"leadswiper/internal/claims"
	"leadswiper/internal/config"
	"leadswiper/internal/fetcher"
	"leadswiper/internal/logging"
	"leadswiper/internal/queue"
	"leadswiper/internal/ranking"
)

var (
	// ErrNotQueued reports a decision on a lead that is not in the session queue.
	ErrNotQueued = errors.New("lead is not in the session queue")
	// ErrInvalidAction reports a decision other than approve, reject, or superlike.
	ErrInvalidAction = errors.New("invalid review action")
	// ErrClosed reports use of a session after teardown.
	ErrClosed = errors.New("session closed")
)

// Options configures a Session.
type Options struct {
	Worker          string
	BatchSize       int
	ExcludedGroups  []string
	SortKey         ranking.Key
	UndoDepth       int
	PersistAttempts int
	RenewInterval   time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
	// BackOff builds the retry policy for each status write.
	BackOff func() backoff.BackOff
	Logger  *slog.Logger
}

// OptionsFromConfig maps review and lease settings onto session options.
func OptionsFromConfig(cfg *config.Config, worker string) Options {
	key, err := ranking.ParseKey(cfg.Review.SortKey)
	if err != nil {
		key = ranking.DefaultKey
	}
	return Options{
		Worker:          worker,
		BatchSize:       cfg.Review.BatchSize,
		ExcludedGroups:  cfg.Review.ExcludedGroups,
		SortKey:         key,
		UndoDepth:       cfg.Review.UndoDepth,
		PersistAttempts: cfg.Review.PersistAttempts,
		RenewInterval:   cfg.RenewInterval(),
	}
}

type historyEntry struct {
	lead   *queue.Lead
	action queue.Status
	gen    uint64
}

// Session is one reviewer's working state: the claimed queue, the undo
// history, local counters, and the renewal loop. All methods are safe for
// concurrent use; mutations are serialized on one mutex.
type Session struct {
	id        string
	opts      Options
	store     queue.LeaseStore
	claims    *claims.Manager
	fetcher   *fetcher.Fetcher
	transport claims.TeardownTransport
	logger    *slog.Logger

	lifecycle context.Context
	stop      context.CancelFunc

	mu          sync.Mutex
	queue       []*queue.Lead
	history     []historyEntry
	counters    map[queue.Status]int
	markers     map[string]*marker
	lastWrite   map[string]chan struct{}
	gen         uint64
	loopRunning bool
	closed      bool

	writes sync.WaitGroup
}

// New builds a Session for opts.Worker. transport receives the release-all
// request on Teardown.
func New(store queue.LeaseStore, manager *claims.Manager, transport claims.TeardownTransport, opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.BackOff == nil {
		opts.BackOff = defaultBackOff
	}
	if opts.SortKey == "" {
		opts.SortKey = ranking.DefaultKey
	}
	if opts.UndoDepth <= 0 {
		opts.UndoDepth = 100
	}
	if opts.PersistAttempts <= 0 {
		opts.PersistAttempts = 1
	}
	id := uuid.NewString()
	logger := logging.NewComponentLogger(opts.Logger, "session").With(
		logging.String(logging.FieldSessionID, id),
		logging.String(logging.FieldWorkerID, opts.Worker),
	)
	lifecycle, stop := context.WithCancel(context.Background())
	return &Session{
		id:        id,
		opts:      opts,
		store:     store,
		claims:    manager,
		fetcher:   fetcher.New(store, manager, opts.Logger, opts.Now),
		transport: transport,
		logger:    logger,
		lifecycle: lifecycle,
		stop:      stop,
		counters:  make(map[queue.Status]int),
		markers:   make(map[string]*marker),
		lastWrite: make(map[string]chan struct{}),
	}
}

func defaultBackOff() backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 2 * time.Second
	policy.MaxElapsedTime = 0
	return policy
}

// ID identifies this session in logs.
func (s *Session) ID() string {
	return s.id
}

// Worker returns the worker identity claims are taken under.
func (s *Session) Worker() string {
	return s.opts.Worker
}

// Load fetches and claims a fresh batch, ranks it, and replaces the queue.
// Leads held by the previous queue that did not make the new batch are
// released. Counters are reseeded from the store.
func (s *Session) Load(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.mu.Unlock()

	batch, err := s.fetcher.FetchBatch(ctx, s.opts.Worker, fetcher.Options{
		Limit:          s.opts.BatchSize,
		Status:         queue.StatusPending,
		ExcludedGroups: s.opts.ExcludedGroups,
	})
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		s.logger.Warn("counter refresh failed", logging.Error(err))
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.claims.Release(ctx, queue.IDs(batch), s.opts.Worker)
		return ErrClosed
	}
	fresh := make(map[string]struct{}, len(batch))
	for _, lead := range batch {
		fresh[lead.ID] = struct{}{}
	}
	var dropped []string
	for _, lead := range s.queue {
		if _, ok := fresh[lead.ID]; !ok {
			dropped = append(dropped, lead.ID)
		}
	}
	s.queue = ranking.Rank(batch, s.opts.SortKey, s.opts.Now())
	if stats != nil {
		s.counters = make(map[queue.Status]int, len(stats))
		for status, count := range stats {
			s.counters[status] = count
		}
	}
	if len(s.queue) > 0 {
		s.startLoopLocked()
	}
	size := len(s.queue)
	s.mu.Unlock()

	s.claims.Release(ctx, dropped, s.opts.Worker)
	s.logger.Info("session queue loaded", logging.Int(logging.FieldCount, size))
	return nil
}

// Current returns the lead at the front of the queue, or nil when empty.
func (s *Session) Current() *queue.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	return s.queue[0].Clone()
}

// Queue returns a snapshot of the queue in display order.
func (s *Session) Queue() []*queue.Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*queue.Lead, len(s.queue))
	for i, lead := range s.queue {
		out[i] = lead.Clone()
	}
	return out
}

// Counters returns the local per-status totals.
func (s *Session) Counters() map[queue.Status]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[queue.Status]int, len(s.counters))
	for status, count := range s.counters {
		out[status] = count
	}
	return out
}

// HistoryLen reports how many decisions can be undone.
func (s *Session) HistoryLen() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

// SortKey returns the active ranking key.
func (s *Session) SortKey() ranking.Key {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.SortKey
}

// SetSortKey switches the ranking key and reorders the queue.
func (s *Session) SetSortKey(key ranking.Key) error {
	parsed, err := ranking.ParseKey(string(key))
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.SortKey = parsed
	s.queue = ranking.Rank(s.queue, parsed, s.opts.Now())
	return nil
}

func (s *Session) indexLocked(id string) int {
	for i, lead := range s.queue {
		if lead.ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) removeLocked(id string) *queue.Lead {
	idx := s.indexLocked(id)
	if idx < 0 {
		return nil
	}
	lead := s.queue[idx]
	s.queue = append(s.queue[:idx], s.queue[idx+1:]...)
	return lead
}

func (s *Session) pushFrontLocked(lead *queue.Lead) {
	if s.indexLocked(lead.ID) >= 0 {
		return
	}
	s.queue = append([]*queue.Lead{lead}, s.queue...)
}

func (s *Session) shiftCounterLocked(from, to queue.Status) {
	if from != "" {
		s.counters[from]--
	}
	if to != "" {
		s.counters[to]++
	}
}
