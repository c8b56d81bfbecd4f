// Package app assembles the courier dependency graph from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/chat"
	"github.com/tOgg1/courier/internal/config"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/db"
	"github.com/tOgg1/courier/internal/delivery"
	"github.com/tOgg1/courier/internal/directory"
	"github.com/tOgg1/courier/internal/events"
	"github.com/tOgg1/courier/internal/inbox"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/relay"
	"github.com/tOgg1/courier/internal/store"
)

// ErrNoIdentity is returned when an operation needs a local identity and
// none is configured.
var ErrNoIdentity = errors.New("no identity selected (use --as, identity.id or `courier use`)")

// Wire bundles the store, services and transport for one local identity.
type Wire struct {
	Config    *config.Config
	Local     string
	DB        *db.DB
	Store     store.Store
	Publisher *events.InMemoryPublisher
	Keys      *crypto.StaticKeyProvider
	Channel   *crypto.Channel
	Tracker   *delivery.Tracker
	Directory *directory.StoreDirectory
	Chat      *chat.Service
	Relay     *relay.Relay

	bus    *relay.NATSBus
	logger zerolog.Logger
}

// NewWire constructs the dependency graph. local may be empty for commands
// that do not act as a user; Chat is nil then.
func NewWire(ctx context.Context, cfg *config.Config, local string) (*Wire, error) {
	w := &Wire{
		Config:    cfg,
		Local:     local,
		Publisher: events.NewInMemoryPublisher(events.WithOrigin(uuid.NewString())),
		logger:    logging.Component("app"),
	}

	switch cfg.Database.Driver {
	case config.DriverMemory:
		w.Store = store.NewMemoryStore(store.WithPublisher(w.Publisher))
	default:
		database, err := db.Open(ctx, db.Config{
			Path:           cfg.DatabasePath(),
			MaxConnections: cfg.Database.MaxConnections,
			BusyTimeoutMs:  cfg.Database.BusyTimeoutMs,
		})
		if err != nil {
			return nil, err
		}
		w.DB = database
		w.Store = store.NewSQLiteStore(database, store.WithPublisher(w.Publisher))
	}

	w.Keys = KeyProvider(cfg)
	w.Channel = crypto.NewChannel(w.Keys)
	w.Tracker = delivery.NewTracker(w.Store)
	w.Directory = directory.New(w.Store)

	if local != "" {
		loc, err := cfg.Location()
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		w.Chat, err = chat.NewService(w.Store, w.Channel, w.Tracker, chat.Config{
			Local:            local,
			Location:         loc,
			MaxDocumentBytes: cfg.Transport.MaxDocumentBytes,
		})
		if err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	if cfg.Transport.NATSURL != "" {
		if err := w.startRelay(ctx); err != nil {
			_ = w.Close()
			return nil, err
		}
	}

	w.logger.Debug().
		Str("driver", cfg.Database.Driver).
		Str("identity", local).
		Bool("relay", w.Relay != nil).
		Msg("wired")
	return w, nil
}

// KeyProvider builds the key provider described by cfg: inline material when
// both keys are set, the PEM files otherwise.
func KeyProvider(cfg *config.Config) *crypto.StaticKeyProvider {
	if cfg.InlineKeys() {
		return crypto.NewStaticKeyProvider(crypto.InlineMaterial(cfg.Keys.PublicKey, cfg.Keys.PrivateKey))
	}
	return crypto.NewStaticKeyProvider(crypto.FileMaterial(cfg.Keys.PublicKeyPath, cfg.Keys.PrivateKeyPath))
}

func (w *Wire) startRelay(ctx context.Context) error {
	name := "courier"
	if w.Local != "" {
		name += "-" + w.Local
	}
	bus, err := relay.Connect(w.Config.Transport.NATSURL, name)
	if err != nil {
		return err
	}
	w.bus = bus

	r, err := relay.New(bus, w.Publisher, w.Config.Transport.SubjectPrefix)
	if err != nil {
		return err
	}
	if err := r.Start(ctx); err != nil {
		return err
	}
	w.Relay = r
	return nil
}

// RequireChat returns the chat service or ErrNoIdentity.
func (w *Wire) RequireChat() (*chat.Service, error) {
	if w.Chat == nil {
		return nil, ErrNoIdentity
	}
	return w.Chat, nil
}

// NewInbox creates an unstarted inbox for the local identity.
func (w *Wire) NewInbox() (*inbox.Aggregator, error) {
	if w.Local == "" {
		return nil, ErrNoIdentity
	}
	return inbox.New(w.Directory, w.Store, w.Channel, w.Local)
}

// RegisterSelf writes the local profile to the directory.
func (w *Wire) RegisterSelf(ctx context.Context, username, avatarURL string) (models.Profile, error) {
	if w.Local == "" {
		return models.Profile{}, ErrNoIdentity
	}
	profile := models.Profile{ID: w.Local, Username: username, AvatarURL: avatarURL}
	if err := w.Directory.Register(ctx, profile); err != nil {
		return models.Profile{}, err
	}
	return profile, nil
}

// Close releases the relay, bus and database.
func (w *Wire) Close() error {
	var errs []error
	if w.Relay != nil {
		if err := w.Relay.Stop(); err != nil && !errors.Is(err, relay.ErrNotRunning) {
			errs = append(errs, err)
		}
	}
	if w.bus != nil {
		if err := w.bus.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay bus: %w", err))
		}
	}
	if w.DB != nil {
		if err := w.DB.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	w.Publisher.Close()
	return errors.Join(errs...)
}
