package daemon

import (
	"context"
	"fmt"

	"github.com/matheus3301/wlite/internal/account"
	"github.com/matheus3301/wlite/internal/api"
	"github.com/matheus3301/wlite/internal/bus"
	"github.com/matheus3301/wlite/internal/chat"
	"github.com/matheus3301/wlite/internal/config"
	"github.com/matheus3301/wlite/internal/contact"
	"github.com/matheus3301/wlite/internal/lock"
	"github.com/matheus3301/wlite/internal/logging"
	"github.com/matheus3301/wlite/internal/message"
	"github.com/matheus3301/wlite/internal/outbox"
	"github.com/matheus3301/wlite/internal/profile"
	"github.com/matheus3301/wlite/internal/realtime"
	"github.com/matheus3301/wlite/internal/relay"
	"github.com/matheus3301/wlite/internal/remote"
	"github.com/matheus3301/wlite/internal/session"
	"github.com/matheus3301/wlite/internal/state"
	"github.com/matheus3301/wlite/internal/store"
	"github.com/matheus3301/wlite/internal/story"
	intsync "github.com/matheus3301/wlite/internal/sync"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	ProfileName string
	SocketPath  string         // optional override for testing; empty = use default
	Config      *config.Config // optional; nil = load the config file
	LogLevel    zapcore.Level
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideRemote,
			session.New,
			provideAccounts,
			provideContacts,
			provideChats,
			provideRelay,
			provideMessages,
			providePoller,
			provideStories,
			provideSender,
			provideRealtime,
			provideSupervisor,
			provideServices,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, p.Config.Validate()
	}
	cfg, err := config.LoadOrDefault(profile.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(profile.LogPath(p.ProfileName), p.ProfileName, p.LogLevel)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *state.Machine {
	return state.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := profile.EnsureDir(p.ProfileName); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.ProfileName))
	l, err := lock.Acquire(profile.Dir(p.ProfileName))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore takes the lock so the store is only opened by its owner.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.StorePath(p.ProfileName)
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
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRemote(cfg *config.Config, logger *zap.Logger) (*remote.Client, error) {
	rc, err := remote.New(remote.Options{
		BaseURL:         cfg.BaseURL(),
		Timeout:         cfg.API.Timeout.Duration,
		RatePerSecond:   cfg.API.RatePerSecond,
		BreakerFailures: cfg.API.BreakerFailures,
		BreakerCooldown: cfg.API.BreakerCooldown.Duration,
		RetryFor:        cfg.API.Timeout.Duration,
		Logger:          logger.Named("remote"),
	})
	if err != nil {
		return nil, err
	}
	logger.Info("backend selected", zap.String("environment", string(cfg.Environment)), zap.String("url", rc.BaseURL()))
	return rc, nil
}

func provideAccounts(db *store.DB, rc *remote.Client, sess *session.Session, b *bus.Bus, logger *zap.Logger) *account.Service {
	return account.New(db, rc, sess, b, logger.Named("account"))
}

func provideContacts(db *store.DB, rc *remote.Client, logger *zap.Logger) *contact.Service {
	return contact.New(db, rc, logger.Named("contact"))
}

func provideChats(db *store.DB, rc *remote.Client, sess *session.Session, accounts *account.Service, b *bus.Bus, logger *zap.Logger) *chat.Repository {
	return chat.New(db, rc, sess, accounts, b, logger.Named("chat"))
}

func provideRelay(rc *remote.Client, logger *zap.Logger) *relay.Relay {
	return relay.New(rc, logger.Named("relay"))
}

func provideMessages(db *store.DB, rc *remote.Client, sess *session.Session, chats *chat.Repository, rl *relay.Relay, b *bus.Bus, logger *zap.Logger) *message.Repository {
	return message.New(db, rc, sess, chats, rl, b, logger.Named("message"))
}

// providePoller also installs the poller as the refresher message fetches run first.
func providePoller(cfg *config.Config, db *store.DB, rc *remote.Client, sess *session.Session, chats *chat.Repository,
	messages *message.Repository, machine *state.Machine, b *bus.Bus, logger *zap.Logger) *intsync.Poller {
	p := intsync.NewPoller(db, rc, sess, chats, messages, machine, b, intsync.Options{
		Interval:     cfg.Sync.PollInterval.Duration,
		CycleTimeout: cfg.Sync.CycleTimeout.Duration,
	}, logger.Named("sync"))
	messages.SetRefresher(p)
	return p
}

func provideStories(db *store.DB, rc *remote.Client, sess *session.Session, b *bus.Bus, logger *zap.Logger) *story.Repository {
	return story.New(db, rc, sess, b, logger.Named("story"))
}

func provideSender(cfg *config.Config, db *store.DB, messages *message.Repository, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, messages, b, cfg.Sync.PollInterval.Duration, logger.Named("outbox"))
}

// provideRealtime returns nil when no websocket url is configured.
func provideRealtime(cfg *config.Config, sess *session.Session, poller *intsync.Poller, b *bus.Bus, logger *zap.Logger) *realtime.Client {
	if cfg.Realtime.URL == "" {
		return nil
	}
	return realtime.New(realtime.Options{
		URL:                  cfg.Realtime.URL,
		MaxReconnectAttempts: cfg.Realtime.MaxReconnectAttempts,
		ReconnectDelay:       cfg.Realtime.ReconnectDelay.Duration,
	}, sess, poller, b, logger.Named("realtime"))
}

type supervisorParams struct {
	fx.In

	Config   *config.Config
	Session  *session.Session
	Accounts *account.Service
	Chats    *chat.Repository
	Poller   *intsync.Poller
	Stories  *story.Repository
	Sender   *outbox.Sender
	Realtime *realtime.Client
	Machine  *state.Machine
	Bus      *bus.Bus
	Logger   *zap.Logger
}

func provideSupervisor(in supervisorParams) *Supervisor {
	return &Supervisor{
		sess:           in.Session,
		accounts:       in.Accounts,
		chats:          in.Chats,
		poller:         in.Poller,
		stories:        in.Stories,
		sender:         in.Sender,
		rt:             in.Realtime,
		machine:        in.Machine,
		bus:            in.Bus,
		logger:         in.Logger.Named("supervisor"),
		statusInterval: in.Config.Sync.StatusInterval.Duration,
	}
}

type serviceParams struct {
	fx.In

	Params     Params
	Machine    *state.Machine
	Accounts   *account.Service
	Contacts   *contact.Service
	Remote     *remote.Client
	Bus        *bus.Bus
	DB         *store.DB
	Session    *session.Session
	Chats      *chat.Repository
	Messages   *message.Repository
	Stories    *story.Repository
	Supervisor *Supervisor
}

func provideServices(in serviceParams) api.Services {
	return api.Services{
		Session: api.NewSessionService(in.Params.ProfileName, in.Machine, in.Accounts, in.Remote, in.Bus, in.DB),
		Sync:    api.NewSyncService(in.Machine, in.Supervisor, in.Remote),
		Chat:    api.NewChatService(in.Chats, in.Session),
		Message: api.NewMessageService(in.Messages),
		Story:   api.NewStoryService(in.Stories),
		Contact: api.NewContactService(in.Contacts),
	}
}

func registerLifecycle(lc fx.Lifecycle, srv *Server, lk *lock.Lock, db *store.DB, sup *Supervisor, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			sup.Watch()
			if err := sup.Boot(); err != nil {
				return fmt.Errorf("boot: %w", err)
			}

			// Start gRPC server in background.
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			// Polling stops before anything it writes to goes away.
			sup.Close()
			srv.Stop(ctx)
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			_ = logger.Sync()
			return nil
		},
	})
}
