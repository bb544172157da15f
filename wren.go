package wren

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/adapters/simulated"
	"github.com/aretw0/wren/pkg/command"
	"github.com/aretw0/wren/pkg/dice"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/entity"
	"github.com/aretw0/wren/pkg/feed"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/aretw0/wren/pkg/scene"
	"github.com/aretw0/wren/pkg/scenelog"
	"github.com/aretw0/wren/pkg/session"
)

// Version is the engine release, reported by the CLI and the HTTP API.
const Version = "0.4.0"

// Engine is the high-level entry point of the library.
// It wires the session services over a single Store.
type Engine struct {
	store         ports.Store
	conversations ports.ConversationStore
	completer     ports.Completer
	locker        ports.DistributedLocker
	notifier      ports.Notifier
	roller        *dice.Roller
	hooks         domain.Hooks
	logger        *slog.Logger
	feedInterval  time.Duration
	lockTTL       time.Duration
	recentLimit   int
	historyLimit  int
	maxInputSize  int

	locks    *session.Manager
	registry *registry.Registry
	log      *scenelog.Log
	scenes   *scene.Service
	entities *entity.Registry
	router   *command.Router
	feed     *feed.Publisher
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithStore sets the persistent store (default: in-memory).
func WithStore(s ports.Store) Option {
	return func(e *Engine) {
		e.store = s
	}
}

// WithConversations sets the conversation history store (default: in-memory buffer).
func WithConversations(s ports.ConversationStore) Option {
	return func(e *Engine) {
		e.conversations = s
	}
}

// WithCompleter sets the completion bridge (default: simulated).
func WithCompleter(c ports.Completer) Option {
	return func(e *Engine) {
		e.completer = c
	}
}

// WithLocker adds a distributed lock around per-session writes.
func WithLocker(l ports.DistributedLocker) Option {
	return func(e *Engine) {
		e.locker = l
	}
}

// WithLockTTL sets the expiration of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(e *Engine) {
		e.lockTTL = ttl
	}
}

// WithNotifier sets how feed streams learn about writes (default: in-process).
func WithNotifier(n ports.Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithRoller sets the dice roller.
func WithRoller(r *dice.Roller) Option {
	return func(e *Engine) {
		e.roller = r
	}
}

// WithHooks registers observability hooks.
func WithHooks(h domain.Hooks) Option {
	return func(e *Engine) {
		e.hooks = h
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithFeedInterval sets the delay between feed poll cycles.
func WithFeedInterval(d time.Duration) Option {
	return func(e *Engine) {
		e.feedInterval = d
	}
}

// WithRecentLogLimit sets how many entries a snapshot carries.
func WithRecentLogLimit(n int) Option {
	return func(e *Engine) {
		e.recentLimit = n
	}
}

// WithHistoryLimit sets how many past messages accompany a prompt.
func WithHistoryLimit(n int) Option {
	return func(e *Engine) {
		e.historyLimit = n
	}
}

// WithMaxInputSize sets the command size limit in bytes.
func WithMaxInputSize(n int) Option {
	return func(e *Engine) {
		e.maxInputSize = n
	}
}

// New initializes an Engine. Without options it runs fully in memory with
// the simulated completer.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{
		recentLimit:  registry.DefaultRecentLimit,
		historyLimit: command.DefaultHistoryLimit,
		maxInputSize: command.DefaultMaxInputSize,
		feedInterval: feed.DefaultInterval,
		lockTTL:      session.DefaultLockTTL,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.store == nil {
		e.store = memory.NewStore()
	}
	if e.conversations == nil {
		e.conversations = memory.NewConversationBuffer(memory.DefaultConversationCapacity)
	}
	if e.completer == nil {
		e.completer = simulated.New()
	}
	if e.notifier == nil {
		e.notifier = memory.NewNotifier()
	}

	lockOpts := []session.Option{session.WithLogger(e.logger), session.WithLockTTL(e.lockTTL)}
	if e.locker != nil {
		lockOpts = append(lockOpts, session.WithLocker(e.locker))
	}
	e.locks = session.NewManager(lockOpts...)

	e.registry = registry.New(e.store, e.locks,
		registry.WithLogger(e.logger),
		registry.WithRecentLimit(e.recentLimit),
	)
	e.log = scenelog.New(e.store, e.locks,
		scenelog.WithNotifier(e.notifier),
		scenelog.WithHooks(e.hooks),
		scenelog.WithLogger(e.logger),
	)
	e.scenes = scene.New(e.store, e.locks,
		scene.WithNotifier(e.notifier),
		scene.WithLogger(e.logger),
	)
	e.entities = entity.New(e.store, e.locks,
		entity.WithNotifier(e.notifier),
		entity.WithLogger(e.logger),
	)

	routerOpts := []command.Option{
		command.WithCompleter(e.completer),
		command.WithConversations(e.conversations),
		command.WithHistoryLimit(e.historyLimit),
		command.WithMaxInputSize(e.maxInputSize),
		command.WithHooks(e.hooks),
		command.WithLogger(e.logger),
	}
	if e.roller != nil {
		routerOpts = append(routerOpts, command.WithRoller(e.roller))
	}
	router, err := command.NewRouter(command.Services{
		Registry: e.registry,
		Log:      e.log,
		Scenes:   e.scenes,
		Entities: e.entities,
		Locks:    e.locks,
	}, routerOpts...)
	if err != nil {
		return nil, err
	}
	e.router = router

	e.feed = feed.NewPublisher(e.store,
		feed.WithNotifier(e.notifier),
		feed.WithInterval(e.feedInterval),
		feed.WithHooks(e.hooks),
		feed.WithLogger(e.logger),
	)
	return e, nil
}

// CreateSession starts a session with the creator as game-master.
func (e *Engine) CreateSession(ctx context.Context, req registry.CreateRequest) (domain.Session, error) {
	return e.registry.Create(ctx, req)
}

// Join enrolls a participant in a session.
func (e *Engine) Join(ctx context.Context, req registry.JoinRequest) (domain.Membership, error) {
	return e.registry.Join(ctx, req)
}

// Session returns a session whether active or not.
func (e *Engine) Session(ctx context.Context, sessionID string) (domain.Session, error) {
	return e.registry.Session(ctx, sessionID)
}

// Membership returns a participant's current role in a session.
func (e *Engine) Membership(ctx context.Context, sessionID, participantID string) (domain.Membership, error) {
	return e.registry.Membership(ctx, sessionID, participantID)
}

// Snapshot returns the view handed to clients joining mid-session.
func (e *Engine) Snapshot(ctx context.Context, sessionID string) (domain.Snapshot, error) {
	return e.registry.Snapshot(ctx, sessionID)
}

// ListSessions returns every session, most recently active first.
func (e *Engine) ListSessions(ctx context.Context) ([]domain.Session, error) {
	return e.registry.List(ctx)
}

// CloseSession deactivates a session on behalf of its game-master.
func (e *Engine) CloseSession(ctx context.Context, sessionID, participantID string) error {
	return e.registry.Close(ctx, sessionID, participantID)
}

// Execute runs one line of participant input.
func (e *Engine) Execute(ctx context.Context, sessionID, participantID, text string) (command.Result, error) {
	return e.router.Execute(ctx, sessionID, participantID, text)
}

// ExecuteStream runs one line of input, passing AI reply fragments to onDelta
// while the reply is generated.
func (e *Engine) ExecuteStream(ctx context.Context, sessionID, participantID, text string, onDelta command.DeltaFunc) (command.Result, error) {
	return e.router.ExecuteStream(ctx, sessionID, participantID, text, onDelta)
}

// LogSince returns entries with seq > afterSeq. A limit <= 0 returns all.
func (e *Engine) LogSince(ctx context.Context, sessionID string, afterSeq int64, limit int) ([]domain.LogEntry, error) {
	return e.log.Since(ctx, sessionID, afterSeq, limit)
}

// Poll computes one change-feed cycle for an observer.
func (e *Engine) Poll(ctx context.Context, sessionID string, cursor domain.Cursor) ([]domain.FeedEvent, domain.Cursor, error) {
	return e.feed.Poll(ctx, sessionID, cursor)
}

// Stream delivers the change feed of a session until ctx is done.
func (e *Engine) Stream(ctx context.Context, sessionID string, cursor domain.Cursor, emit feed.EmitFunc) error {
	return e.feed.Stream(ctx, sessionID, cursor, emit)
}

// Commands lists the registered command names.
func (e *Engine) Commands() []string {
	return e.router.Commands()
}

// Store returns the underlying store.
func (e *Engine) Store() ports.Store {
	return e.store
}
