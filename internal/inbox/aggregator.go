// Package inbox aggregates the latest message of every conversation the
// local identity can have into one filterable list.
package inbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/tOgg1/courier/internal/crypto"
	"github.com/tOgg1/courier/internal/directory"
	"github.com/tOgg1/courier/internal/logging"
	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

// Preview texts.
const (
	PreviewNoMessages      = "No messages yet"
	PreviewDecryptionError = "Decryption error"
	PreviewFetchError      = "Error fetching message"
	PreviewOwnPrefix       = "You: "
)

// Aggregator errors.
var (
	ErrAlreadyStarted = errors.New("inbox already started")
	ErrNotStarted     = errors.New("inbox not started")
	ErrClosed         = errors.New("inbox closed")
)

// Entry is one inbox row.
type Entry struct {
	Profile       models.Profile
	Preview       string
	Unread        bool
	LastTimestamp int64
	Favorite      bool
}

type lastKind int

const (
	lastPending lastKind = iota
	lastEmpty
	lastMessage
	lastError
)

// member tracks one counterpart's last-message subscription.
type member struct {
	profile   models.Profile
	stop      func()
	kind      lastKind
	body      string
	mine      bool
	unread    bool
	timestamp int64
}

// Aggregator maintains the inbox for one local identity.
type Aggregator struct {
	dir     directory.Directory
	store   store.Store
	channel *crypto.Channel
	local   string
	now     func() time.Time
	logger  zerolog.Logger

	mu              sync.Mutex
	members         map[string]*member
	order           []string
	favorites       map[string]bool
	filter          Filter
	profilesLoaded  bool
	favoritesLoaded bool
	dirErr          error
	started         bool
	closing         bool
	closed          bool
	changed         chan struct{}
	stops           []func()
	cancel          context.CancelFunc

	updates chan []Entry
	wg      sync.WaitGroup
}

// New creates an Aggregator for local.
func New(dir directory.Directory, s store.Store, channel *crypto.Channel, local string) (*Aggregator, error) {
	if err := models.ValidateIdentity(local); err != nil {
		return nil, fmt.Errorf("local identity: %w", err)
	}
	return &Aggregator{
		dir:       dir,
		store:     s,
		channel:   channel,
		local:     local,
		now:       time.Now,
		logger:    logging.WithIdentity(logging.Component("inbox"), local),
		members:   make(map[string]*member),
		favorites: make(map[string]bool),
		changed:   make(chan struct{}),
		updates:   make(chan []Entry, 1),
	}, nil
}

// Start subscribes to the directory and the favorites list.
func (a *Aggregator) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return ErrAlreadyStarted
	}
	if a.closing {
		return ErrClosed
	}
	a.started = true

	ctx, a.cancel = context.WithCancel(ctx)

	profiles, stopProfiles := a.dir.Subscribe(ctx)
	favorites, stopFavorites := a.store.Subscribe(ctx, store.Query{Collection: models.FavoritesPath(a.local)})
	a.stops = append(a.stops, stopProfiles, stopFavorites)

	a.wg.Add(2)
	go a.watchProfiles(ctx, profiles)
	go a.watchFavorites(favorites)
	return nil
}

// Updates returns the filtered entry list channel. A slow reader skips to
// the newest list. It is closed by Close.
func (a *Aggregator) Updates() <-chan []Entry {
	return a.updates
}

// Entries returns the filtered entries.
func (a *Aggregator) Entries() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Apply(a.entriesLocked(), a.filter)
}

// All returns every entry regardless of filter.
func (a *Aggregator) All() []Entry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.entriesLocked()
}

// Filter returns the active filter.
func (a *Aggregator) Filter() Filter {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.filter
}

// SetFilter changes the active filter and republishes.
func (a *Aggregator) SetFilter(f Filter) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.filter = f
	a.publishLocked()
}

// ToggleFavorite adds counterpart to the favorites, or removes it when
// already present. It returns the new favorite state.
func (a *Aggregator) ToggleFavorite(ctx context.Context, counterpart string) (bool, error) {
	if err := models.ValidatePair(a.local, counterpart); err != nil {
		return false, err
	}
	path := models.FavoritesPath(a.local)

	_, err := a.store.Get(ctx, path, counterpart)
	switch {
	case err == nil:
		if err := a.store.Delete(ctx, path, counterpart); err != nil {
			return true, fmt.Errorf("remove favorite %s: %w", counterpart, err)
		}
		return false, nil
	case errors.Is(err, store.ErrNotFound):
		if err := a.store.Set(ctx, path, counterpart, store.Fields{
			models.FieldTimestamp: a.now().UnixMilli(),
		}); err != nil {
			return false, fmt.Errorf("add favorite %s: %w", counterpart, err)
		}
		return true, nil
	default:
		return false, fmt.Errorf("read favorite %s: %w", counterpart, err)
	}
}

// WaitSynced blocks until the directory, the favorites and every
// counterpart subscription have delivered at least once.
func (a *Aggregator) WaitSynced(ctx context.Context) error {
	for {
		a.mu.Lock()
		if !a.started {
			a.mu.Unlock()
			return ErrNotStarted
		}
		if a.dirErr != nil {
			err := a.dirErr
			a.mu.Unlock()
			return err
		}
		if a.syncedLocked() {
			a.mu.Unlock()
			return nil
		}
		if a.closing {
			a.mu.Unlock()
			return ErrClosed
		}
		changed := a.changed
		a.mu.Unlock()

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close cancels every subscription and closes Updates.
func (a *Aggregator) Close() {
	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	a.closing = true
	stops := a.stops
	for _, m := range a.members {
		stops = append(stops, m.stop)
	}
	cancel := a.cancel
	a.broadcastLocked()
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, stop := range stops {
		stop()
	}
	a.wg.Wait()

	a.mu.Lock()
	a.closed = true
	close(a.updates)
	a.mu.Unlock()
}

func (a *Aggregator) watchProfiles(ctx context.Context, profiles <-chan directory.Snapshot) {
	defer a.wg.Done()
	for snap := range profiles {
		if snap.Err != nil {
			a.logger.Error().Err(snap.Err).Msg("failed to load users")
			a.mu.Lock()
			a.dirErr = snap.Err
			a.profilesLoaded = true
			a.broadcastLocked()
			a.mu.Unlock()
			return
		}
		a.reconcile(ctx, snap.Profiles)
	}
}

// reconcile starts subscriptions for new counterparts, refreshes profiles
// of known ones and drops counterparts no longer listed.
func (a *Aggregator) reconcile(ctx context.Context, profiles []models.Profile) {
	var stale []func()

	a.mu.Lock()
	if a.closing {
		a.mu.Unlock()
		return
	}
	present := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		if p.ID == a.local || models.ValidateIdentity(p.ID) != nil {
			continue
		}
		present[p.ID] = true
		if m, ok := a.members[p.ID]; ok {
			m.profile = p
			continue
		}
		a.addMemberLocked(ctx, p)
	}
	for id, m := range a.members {
		if present[id] {
			continue
		}
		stale = append(stale, m.stop)
		delete(a.members, id)
		a.removeOrderLocked(id)
	}
	a.profilesLoaded = true
	a.publishLocked()
	a.broadcastLocked()
	a.mu.Unlock()

	for _, stop := range stale {
		stop()
	}
}

func (a *Aggregator) addMemberLocked(ctx context.Context, p models.Profile) {
	conv := models.DeriveConversationID(a.local, p.ID)
	feed, stop := a.store.Subscribe(ctx, store.Query{
		Collection: models.MessagesPath(conv),
		OrderBy:    models.FieldTimestamp,
		Direction:  store.Descending,
		Limit:      1,
	})
	m := &member{profile: p, stop: stop}
	a.members[p.ID] = m

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		for snap := range feed {
			a.handleLast(ctx, m, snap)
		}
	}()
}

func (a *Aggregator) handleLast(ctx context.Context, m *member, snap store.Snapshot) {
	next := member{}
	switch {
	case snap.Err != nil:
		a.logger.Warn().Err(snap.Err).Str("counterpart", m.profile.ID).Msg("failed to load last message")
		next.kind = lastError
	case len(snap.Documents) == 0:
		next.kind = lastEmpty
	default:
		doc := snap.Documents[0]
		msg, err := models.MessageFromFields(doc.ID, doc.Fields)
		if err != nil {
			a.logger.Warn().Err(err).Str("counterpart", m.profile.ID).Msg("malformed last message")
			next.kind = lastError
			break
		}
		// A record without a seen flag counts as seen.
		seen := msg.Seen
		if _, ok := doc.Fields[models.FieldSeen]; !ok {
			seen = true
		}
		next.kind = lastMessage
		next.body = a.channel.OpenOr(ctx, msg.Ciphertext, PreviewDecryptionError)
		next.mine = msg.SenderID == a.local
		next.unread = !next.mine && !seen
		next.timestamp = msg.Timestamp
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closing || a.members[m.profile.ID] != m {
		return
	}
	if m.kind == lastPending {
		a.order = append(a.order, m.profile.ID)
	}
	m.kind = next.kind
	m.body = next.body
	m.mine = next.mine
	m.unread = next.unread
	m.timestamp = next.timestamp
	a.publishLocked()
	a.broadcastLocked()
}

func (a *Aggregator) watchFavorites(favorites <-chan store.Snapshot) {
	defer a.wg.Done()
	for snap := range favorites {
		a.mu.Lock()
		if snap.Err != nil {
			a.logger.Warn().Err(snap.Err).Msg("failed to load favorites")
		} else {
			a.favorites = make(map[string]bool, len(snap.Documents))
			for _, doc := range snap.Documents {
				a.favorites[doc.ID] = true
			}
		}
		a.favoritesLoaded = true
		a.publishLocked()
		a.broadcastLocked()
		a.mu.Unlock()
	}
}

func (a *Aggregator) entriesLocked() []Entry {
	entries := make([]Entry, 0, len(a.order))
	for _, id := range a.order {
		m, ok := a.members[id]
		if !ok {
			continue
		}
		entries = append(entries, Entry{
			Profile:       m.profile,
			Preview:       previewFor(m),
			Unread:        m.unread,
			LastTimestamp: m.timestamp,
			Favorite:      a.favorites[id],
		})
	}
	return entries
}

func previewFor(m *member) string {
	switch m.kind {
	case lastEmpty:
		return PreviewNoMessages
	case lastError:
		return PreviewFetchError
	case lastMessage:
		if m.mine {
			return PreviewOwnPrefix + m.body
		}
		return m.profile.DisplayName() + ": " + m.body
	default:
		return ""
	}
}

func (a *Aggregator) syncedLocked() bool {
	if !a.profilesLoaded || !a.favoritesLoaded {
		return false
	}
	for _, m := range a.members {
		if m.kind == lastPending {
			return false
		}
	}
	return true
}

func (a *Aggregator) removeOrderLocked(id string) {
	for i, existing := range a.order {
		if existing == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			return
		}
	}
}

// broadcastLocked wakes WaitSynced callers.
func (a *Aggregator) broadcastLocked() {
	close(a.changed)
	a.changed = make(chan struct{})
}

// publishLocked replaces any unread list on Updates with the current one.
func (a *Aggregator) publishLocked() {
	if a.closed {
		return
	}
	entries := Apply(a.entriesLocked(), a.filter)
	select {
	case a.updates <- entries:
	default:
		select {
		case <-a.updates:
		default:
		}
		a.updates <- entries
	}
}
