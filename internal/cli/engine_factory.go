package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/turnstile"
	"github.com/aretw0/turnstile/internal/config"
	"github.com/aretw0/turnstile/pkg/adapters/loam"
	"github.com/aretw0/turnstile/pkg/adapters/memory"
	"github.com/aretw0/turnstile/pkg/adapters/process"
	"github.com/aretw0/turnstile/pkg/adapters/redis"
	"github.com/aretw0/turnstile/pkg/adapters/sqlstore"
	"github.com/aretw0/turnstile/pkg/domain"
	"github.com/aretw0/turnstile/pkg/notify"
	"github.com/aretw0/turnstile/pkg/persistence/middleware"
	"github.com/aretw0/turnstile/pkg/ports"
)

// Backend groups the storage collaborators selected by configuration.
type Backend struct {
	Store ports.EntityStore
	Audit ports.AuditLog
	Inbox ports.Inbox
	close func() error
}

// Close releases connections held by the backend.
func (b *Backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

// OpenBackend connects the store, audit log and inbox for cfg.Driver.
func OpenBackend(ctx context.Context, cfg config.StoreConfig) (*Backend, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return &Backend{Store: memory.NewStore(), Audit: memory.NewAuditLog(), Inbox: memory.NewInbox()}, nil

	case config.DriverRedis:
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redis.WithPrefix(cfg.RedisPrefix))
		if err := store.Client().Ping(ctx).Err(); err != nil {
			store.Close()
			return nil, fmt.Errorf("connect redis %s: %w", cfg.RedisAddr, err)
		}
		return &Backend{
			Store: store,
			Audit: redis.NewAuditLog(store.Client(), redis.WithPrefix(cfg.RedisPrefix)),
			Inbox: redis.NewInbox(store.Client(), redis.WithPrefix(cfg.RedisPrefix)),
			close: store.Close,
		}, nil

	case config.DriverFile:
		b, err := loam.Open(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return &Backend{Store: b.Store, Audit: b.Audit, Inbox: b.Inbox}, nil

	case config.DriverSQLite, config.DriverPostgres:
		dialect := sqlstore.SQLite
		if cfg.Driver == config.DriverPostgres {
			dialect = sqlstore.Postgres
		}
		db, err := sqlstore.Open(dialect, cfg.DSN)
		if err != nil {
			return nil, err
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("connect %s: %w", cfg.Driver, err)
		}
		return &Backend{
			Store: sqlstore.NewStore(db, dialect),
			Audit: sqlstore.NewAuditLog(db, dialect),
			Inbox: sqlstore.NewInbox(db, dialect),
			close: db.Close,
		}, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
}

// AuditMiddlewares builds redaction and sealing from configuration.
// Redaction runs first so sealed metadata is already masked.
func AuditMiddlewares(cfg config.AuditConfig) ([]middleware.Middleware, error) {
	var mws []middleware.Middleware
	if len(cfg.RedactKeys) > 0 {
		redact, err := middleware.NewPIIMiddleware(cfg.RedactKeys)
		if err != nil {
			return nil, err
		}
		mws = append(mws, redact)
	}
	key, err := cfg.Key()
	if err != nil {
		return nil, err
	}
	if key != nil {
		seal, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key})
		if err != nil {
			return nil, err
		}
		mws = append(mws, seal)
	}
	return mws, nil
}

// Senders routes in_app to the inbox and every other channel to the log,
// unless the senders file assigns the channel a command.
func Senders(cfg config.NotifyConfig, inbox ports.Inbox, logger *slog.Logger) ([]notify.Option, error) {
	logSender := notify.NewLogSender(logger)
	opts := []notify.Option{
		notify.WithSender(domain.ChannelInApp, notify.NewInboxSender(inbox)),
		notify.WithSender(domain.ChannelEmail, logSender),
		notify.WithSender(domain.ChannelSMS, logSender),
		notify.WithSender(domain.ChannelPush, logSender),
	}
	if cfg.SendersFile == "" {
		return opts, nil
	}

	commands, err := process.LoadSenders(cfg.SendersFile)
	if err != nil {
		return nil, err
	}
	runner := process.New(process.WithRegistry(commands))
	for _, ch := range runner.Channels() {
		opts = append(opts, notify.WithSender(ch, runner.For(ch)))
		logger.Debug("command sender registered", "channel", ch, "command", commands[ch].Command)
	}
	return opts, nil
}

// Stack is a running engine with the backend it owns.
type Stack struct {
	Engine  *turnstile.Engine
	Backend *Backend
}

// Close drains notifications, then closes the backend.
func (s *Stack) Close() error {
	return errors.Join(s.Engine.Close(), s.Backend.Close())
}

// CreateEngine initializes a Turnstile engine with standard CLI conventions.
func CreateEngine(ctx context.Context, cfg config.Config, logger *slog.Logger, hooks domain.LifecycleHooks) (*Stack, error) {
	backend, err := OpenBackend(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}

	mws, err := AuditMiddlewares(cfg.Audit)
	if err != nil {
		backend.Close()
		return nil, err
	}

	senders, err := Senders(cfg.Notify, backend.Inbox, logger)
	if err != nil {
		backend.Close()
		return nil, err
	}
	dispatcher := notify.New(append(senders,
		notify.WithLogger(logger),
		notify.WithLifecycleHooks(hooks),
		notify.WithTimeout(cfg.Notify.Timeout),
		notify.WithConcurrency(cfg.Notify.Concurrency),
	)...)

	engine, err := turnstile.New(
		turnstile.WithLogger(logger),
		turnstile.WithLifecycleHooks(hooks),
		turnstile.WithStore(backend.Store),
		turnstile.WithAuditLog(middleware.Chain(backend.Audit, mws...)),
		turnstile.WithInbox(backend.Inbox),
		turnstile.WithDispatcher(dispatcher),
	)
	if err != nil {
		backend.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}

	logger.Debug("engine ready", "driver", cfg.Store.Driver, "audit_middlewares", len(mws))
	return &Stack{Engine: engine, Backend: backend}, nil
}
