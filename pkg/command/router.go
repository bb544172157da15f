// Package command dispatches participant input to command handlers.
//
// Input starting with Prefix is a command: the first word names the handler
// and the rest is split into POSIX-style arguments. Any other input is a
// prompt for the completion bridge. Session state and the caller's role are
// re-read for every command; nothing is cached between calls.
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/aretw0/wren/internal/logging"
	"github.com/aretw0/wren/pkg/dice"
	"github.com/aretw0/wren/pkg/domain"
	"github.com/aretw0/wren/pkg/entity"
	"github.com/aretw0/wren/pkg/ports"
	"github.com/aretw0/wren/pkg/registry"
	"github.com/aretw0/wren/pkg/scene"
	"github.com/aretw0/wren/pkg/scenelog"
	"github.com/aretw0/wren/pkg/session"
	"github.com/buildkite/shellwords"
)

const (
	// Prefix marks input as a command.
	Prefix = "/"
	// PromptCommand names non-command input in results and metrics.
	PromptCommand = "ai"
	// DefaultHistoryLimit is the number of past messages sent with a prompt.
	DefaultHistoryLimit = 5
)

// Invocation is one parsed command.
type Invocation struct {
	Session domain.Session
	Member  domain.Membership
	Name    string
	Args    []string
	// Raw is the text after the command name, trimmed.
	Raw string
	// OnDelta, when set, receives AI reply fragments as they are generated.
	OnDelta DeltaFunc
}

// DeltaFunc receives one fragment of a reply that is still being generated.
type DeltaFunc func(delta string) error

// Result is the synchronous answer to a command.
type Result struct {
	Command string             `json:"command"`
	Message string             `json:"message,omitempty"`
	Entry   *domain.LogEntry   `json:"log_entry,omitempty"`
	Scene   *domain.SceneState `json:"scene,omitempty"`
	Entity  *domain.Entity     `json:"entity,omitempty"`
	Roll    *dice.Result       `json:"roll,omitempty"`
}

// Handler executes one command.
type Handler func(ctx context.Context, inv Invocation) (Result, error)

// Services are the components commands act upon.
type Services struct {
	Registry *registry.Registry
	Log      *scenelog.Log
	Scenes   *scene.Service
	Entities *entity.Registry
	Locks    *session.Manager
}

// Router dispatches input to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string]Handler

	svc           Services
	roller        *dice.Roller
	completer     ports.Completer
	conversations ports.ConversationStore
	historyLimit  int
	maxInputSize  int
	hooks         domain.Hooks
	logger        *slog.Logger
}

// Option configures the Router.
type Option func(*Router)

// WithCompleter sets the completion bridge used for prompts.
func WithCompleter(c ports.Completer) Option {
	return func(r *Router) {
		r.completer = c
	}
}

// WithConversations sets the history store fed to the completion bridge.
func WithConversations(s ports.ConversationStore) Option {
	return func(r *Router) {
		r.conversations = s
	}
}

// WithRoller sets the dice roller, mainly to seed it in tests.
func WithRoller(roller *dice.Roller) Option {
	return func(r *Router) {
		r.roller = roller
	}
}

// WithHistoryLimit sets how many past messages accompany a prompt.
func WithHistoryLimit(n int) Option {
	return func(r *Router) {
		if n >= 0 {
			r.historyLimit = n
		}
	}
}

// WithMaxInputSize sets the input size limit in bytes.
func WithMaxInputSize(n int) Option {
	return func(r *Router) {
		r.maxInputSize = n
	}
}

// WithHooks registers observability callbacks.
func WithHooks(h domain.Hooks) Option {
	return func(r *Router) {
		r.hooks = h
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a Router with the built-in commands registered.
func NewRouter(svc Services, opts ...Option) (*Router, error) {
	r := &Router{
		handlers:     make(map[string]Handler),
		svc:          svc,
		historyLimit: DefaultHistoryLimit,
		maxInputSize: DefaultMaxInputSize,
		logger:       logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.roller == nil {
		seed, err := dice.NewSeed()
		if err != nil {
			return nil, err
		}
		r.roller = dice.NewRoller(seed)
	}

	r.Register("scene", r.handleScene)
	r.Register("roll", r.handleRoll)
	r.Register("summon", r.handleSummon)
	r.Register("echo", r.handleEcho)
	r.Register("dismiss", r.handleDismiss)
	for _, name := range []string{"mark", "meta", "recall", "pulse"} {
		r.Register(name, notImplemented)
	}
	return r, nil
}

// Register adds a command handler.
// If a handler with the same name exists, it is overwritten.
func (r *Router) Register(name string, fn Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = fn
}

// Commands lists the registered command names in alphabetical order.
func (r *Router) Commands() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one line of participant input against a session.
func (r *Router) Execute(ctx context.Context, sessionID, participantID, text string) (Result, error) {
	return r.ExecuteStream(ctx, sessionID, participantID, text, nil)
}

// ExecuteStream is Execute with onDelta receiving AI reply fragments while
// the reply is generated. Other commands never call onDelta. The reply is
// logged only once it is complete.
func (r *Router) ExecuteStream(ctx context.Context, sessionID, participantID, text string, onDelta DeltaFunc) (res Result, err error) {
	start := time.Now()
	name := PromptCommand
	defer func() {
		r.hooks.Command(ctx, &domain.CommandEvent{
			Timestamp:     time.Now(),
			SessionID:     sessionID,
			ParticipantID: participantID,
			Command:       name,
			Duration:      time.Since(start),
			Err:           err,
		})
		if err != nil {
			r.logger.Debug("Command failed", "session_id", sessionID, "command", name, "err", err)
		}
	}()

	text, err = Sanitize(text, r.maxInputSize)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Result{}, fmt.Errorf("%w: command text is empty", domain.ErrValidation)
	}

	sess, err := r.svc.Registry.RequireActive(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	member, err := r.svc.Registry.Membership(ctx, sessionID, participantID)
	if err != nil {
		return Result{}, err
	}

	inv := Invocation{Session: sess, Member: member, OnDelta: onDelta}
	if !strings.HasPrefix(text, Prefix) {
		inv.Raw = text
		return r.handlePrompt(ctx, inv)
	}

	head, rest := cutCommand(strings.TrimPrefix(text, Prefix))
	name = strings.ToLower(head)
	inv.Name = name
	inv.Raw = rest
	inv.Args = splitArgs(inv.Raw)

	r.mu.RLock()
	fn, ok := r.handlers[name]
	r.mu.RUnlock()
	if !ok {
		return Result{}, fmt.Errorf("%w: Unknown command: /%s", domain.ErrUnknownCommand, name)
	}

	res, err = fn(ctx, inv)
	if err != nil {
		return Result{}, err
	}
	res.Command = name
	return res, nil
}

// cutCommand splits the command name from its argument text at the first
// whitespace rune.
func cutCommand(s string) (name, rest string) {
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// splitArgs groups quoted words. Unbalanced quotes, common in narrative text
// such as "don't", fall back to plain whitespace splitting.
func splitArgs(s string) []string {
	if s == "" {
		return nil
	}
	args, err := shellwords.SplitPosix(s)
	if err != nil {
		return strings.Fields(s)
	}
	return args
}

func notImplemented(ctx context.Context, inv Invocation) (Result, error) {
	return Result{}, fmt.Errorf("%w: The /%s command is not yet implemented", domain.ErrNotImplemented, inv.Name)
}

// IsClientError reports whether err was caused by the caller rather than the
// server.
func IsClientError(err error) bool {
	for _, target := range []error{
		domain.ErrSessionNotFound,
		domain.ErrAlreadyMember,
		domain.ErrNotAMember,
		domain.ErrUnauthorized,
		domain.ErrUnknownCommand,
		domain.ErrNotImplemented,
		domain.ErrValidation,
		domain.ErrNotFound,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
