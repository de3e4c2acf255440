package daemon

import (
	"context"

	"github.com/tello-im/tello/internal/account"
	"github.com/tello-im/tello/internal/bus"
	"github.com/tello-im/tello/internal/config"
	"github.com/tello-im/tello/internal/identity"
	"github.com/tello-im/tello/internal/lock"
	"github.com/tello-im/tello/internal/logging"
	"github.com/tello-im/tello/internal/service"
	"github.com/tello-im/tello/internal/status"
	"github.com/tello-im/tello/internal/store"
	intsync "github.com/tello-im/tello/internal/sync"
	"github.com/tello-im/tello/internal/transport"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved account configuration passed to the fx module.
type Params struct {
	AccountName string
	Config      *config.Config
}

// Module returns the fx module for the engine, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("engine",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideKeyring,
			provideTransport,
			provideBridge,
			provideSession,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(account.LogPath(p.AccountName), p.AccountName)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := account.EnsureDir(p.AccountName); err != nil {
		return nil, err
	}
	logger.Info("acquiring account lock", zap.String("account", p.AccountName))
	l, err := lock.Acquire(account.Dir(p.AccountName))
	if err != nil {
		return nil, err
	}
	logger.Info("account lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := account.DBPath(p.AccountName)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideKeyring(p Params, logger *zap.Logger) (*identity.Keyring, error) {
	k, err := identity.LoadOrCreateKeyring(account.KeyPath(p.AccountName))
	if err != nil {
		return nil, err
	}
	logger.Info("wallet loaded", zap.String("address", identity.Shorten(k.Address())))
	return k, nil
}

func provideTransport(p Params, logger *zap.Logger) transport.Transport {
	if p.Config == nil || !p.Config.RemoteEnabled {
		logger.Info("remote sync disabled, running local-only")
		return nil
	}
	return transport.NewMemoryLog()
}

func provideBridge(db *store.DB, b *bus.Bus, remote transport.Transport, logger *zap.Logger) *intsync.Bridge {
	return intsync.NewBridge(db, b, remote, logger)
}

func provideSession(p Params, db *store.DB, b *bus.Bus, bridge *intsync.Bridge, k *identity.Keyring, m *status.Machine, logger *zap.Logger) *service.Session {
	opts := service.Options{}
	if p.Config != nil {
		opts.MessagePageSize = p.Config.MessagePageSize
		opts.ConversationPageSize = p.Config.ConversationPageSize
		opts.RateLimitPerMinute = p.Config.RateLimitPerMinute
		opts.PublishRetries = p.Config.PublishRetries
	}
	return service.NewSession(db, b, bridge, k, m, logger, opts)
}

func registerLifecycle(lc fx.Lifecycle, sess *service.Session, k *identity.Keyring, lk *lock.Lock, db *store.DB, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := sess.Initialize(k.Address()); err != nil {
				return err
			}
			logger.Info("engine ready", zap.String("address", identity.Shorten(k.Address())))
			return nil
		},
		OnStop: func(_ context.Context) error {
			sess.Cleanup()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("engine stopped")
			return nil
		},
	})
}
