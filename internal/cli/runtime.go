// Package cli assembles the engine from configuration and hosts the
// interactive terminal clients.
package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/wren"
	"github.com/aretw0/wren/internal/config"
	"github.com/aretw0/wren/pkg/adapters/memory"
	"github.com/aretw0/wren/pkg/adapters/openai"
	wrenredis "github.com/aretw0/wren/pkg/adapters/redis"
	"github.com/aretw0/wren/pkg/adapters/simulated"
	"github.com/aretw0/wren/pkg/adapters/sqlite"
	"github.com/aretw0/wren/pkg/conversation"
	"github.com/aretw0/wren/pkg/observability"
	"github.com/aretw0/wren/pkg/ports"
	backend "github.com/redis/go-redis/v9"
)

// Runtime is an engine plus the resources it owns.
type Runtime struct {
	Engine  *wren.Engine
	Metrics *observability.Metrics
	closers []func() error
}

// Close releases stores and clients in reverse order of creation.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		errs = append(errs, r.closers[i]())
	}
	return errors.Join(errs...)
}

// NewRuntime builds the engine described by cfg.
func NewRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{Metrics: observability.NewMetrics()}
	ok := false
	defer func() {
		if !ok {
			rt.Close()
		}
	}()

	opts := []wren.Option{
		wren.WithLogger(logger),
		wren.WithHooks(rt.Metrics.Hooks().Merge(observability.AuditHooks(logger))),
		wren.WithFeedInterval(cfg.Feed.Interval),
		wren.WithRecentLogLimit(cfg.Feed.RecentLimit),
		wren.WithHistoryLimit(cfg.Conversations.History),
		wren.WithMaxInputSize(cfg.MaxInputSize),
		wren.WithLockTTL(cfg.Redis.LockTTL),
	}

	var sqlStore *sqlite.Store
	openSQLite := func() (*sqlite.Store, error) {
		if sqlStore != nil {
			return sqlStore, nil
		}
		s, err := sqlite.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, s.Close)
		sqlStore = s
		return s, nil
	}

	if cfg.Store.Driver == config.DriverSQLite {
		s, err := openSQLite()
		if err != nil {
			return nil, err
		}
		opts = append(opts, wren.WithStore(s))
		logger.Info("Using SQLite store", "path", cfg.Store.Path)
	}

	var client backend.UniversalClient
	if cfg.Redis.Addr != "" {
		c := backend.NewClient(&backend.Options{Addr: cfg.Redis.Addr})
		rt.closers = append(rt.closers, c.Close)
		if err := c.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
		}
		client = c
	}
	prefix := cfg.Redis.Prefix + ":"
	if client != nil && cfg.Redis.Lock {
		opts = append(opts, wren.WithLocker(wrenredis.NewLocker(client, prefix)))
	}
	if client != nil && cfg.Redis.Notify {
		opts = append(opts, wren.WithNotifier(wrenredis.NewNotifier(client, prefix, logger)))
	}

	conversations, err := buildConversations(cfg, client, openSQLite, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, wren.WithConversations(conversations))

	completer, err := buildCompleter(cfg.AI, logger)
	if err != nil {
		return nil, err
	}
	opts = append(opts, wren.WithCompleter(completer))

	eng, err := wren.New(opts...)
	if err != nil {
		return nil, err
	}
	rt.Engine = eng
	ok = true
	return rt, nil
}

func buildConversations(cfg config.Config, client backend.UniversalClient, openSQLite func() (*sqlite.Store, error), logger *slog.Logger) (ports.ConversationStore, error) {
	buffer := memory.NewConversationBuffer(cfg.Conversations.Buffer)

	var store ports.ConversationStore = buffer
	switch cfg.Conversations.Store {
	case config.DriverSQLite:
		s, err := openSQLite()
		if err != nil {
			return nil, err
		}
		store = conversation.NewFallback(s.Conversations(), buffer, conversation.WithLogger(logger))
	case config.DriverRedis:
		if client == nil {
			return nil, fmt.Errorf("%w: redis conversation store needs redis.addr", config.ErrInvalid)
		}
		durable := wrenredis.NewConversations(client, wrenredis.WithPrefix(cfg.Redis.Prefix+":"))
		store = conversation.NewFallback(durable, buffer, conversation.WithLogger(logger))
	}

	var mws []conversation.Middleware
	if len(cfg.Conversations.Redact) > 0 {
		mw, err := conversation.NewRedactMiddleware(cfg.Conversations.Redact)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	if cfg.Conversations.EncryptionKey != "" {
		enc, err := encryptionConfig(cfg.Conversations)
		if err != nil {
			return nil, err
		}
		mw, err := conversation.NewEncryptionMiddleware(enc)
		if err != nil {
			return nil, err
		}
		mws = append(mws, mw)
	}
	return conversation.Chain(store, mws...), nil
}

func encryptionConfig(cfg config.ConversationConfig) (conversation.EncryptionConfig, error) {
	active, err := base64.StdEncoding.DecodeString(cfg.EncryptionKey)
	if err != nil {
		return conversation.EncryptionConfig{}, fmt.Errorf("decode conversation key: %w", err)
	}
	out := conversation.EncryptionConfig{ActiveKey: active}
	for _, k := range cfg.FallbackKeys {
		key, err := base64.StdEncoding.DecodeString(k)
		if err != nil {
			return conversation.EncryptionConfig{}, fmt.Errorf("decode fallback key: %w", err)
		}
		out.FallbackKeys = append(out.FallbackKeys, key)
	}
	return out, nil
}

func buildCompleter(cfg config.AIConfig, logger *slog.Logger) (ports.Completer, error) {
	if cfg.APIKey == "" {
		logger.Info("No AI API key configured, using simulated narrator")
		return simulated.New(), nil
	}
	return openai.New(openai.Config{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
		Timeout:     cfg.Timeout,
		Logger:      logger,
	})
}
