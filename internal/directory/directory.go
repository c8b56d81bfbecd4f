// Package directory lists user profiles from the users collection.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tOgg1/courier/internal/models"
	"github.com/tOgg1/courier/internal/store"
)

// ErrUnknownProfile is returned when no profile exists for an identity.
var ErrUnknownProfile = errors.New("unknown profile")

// Snapshot is the full profile list at one point in time.
type Snapshot struct {
	Profiles []models.Profile
	Err      error
}

// Directory resolves identities to profiles.
type Directory interface {
	// Subscribe delivers the profile list now and whenever it changes.
	Subscribe(ctx context.Context) (<-chan Snapshot, func())
	// Lookup returns one profile.
	Lookup(ctx context.Context, id string) (models.Profile, error)
}

// StoreDirectory implements Directory on top of a document store.
type StoreDirectory struct {
	store store.Store
}

var _ Directory = (*StoreDirectory)(nil)

// New creates a StoreDirectory.
func New(s store.Store) *StoreDirectory {
	return &StoreDirectory{store: s}
}

// Register creates or replaces the profile for p.ID.
func (d *StoreDirectory) Register(ctx context.Context, p models.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := d.store.Set(ctx, models.UsersCollection, p.ID, p.Fields()); err != nil {
		return fmt.Errorf("register %s: %w", p.ID, err)
	}
	return nil
}

// Lookup implements Directory.
func (d *StoreDirectory) Lookup(ctx context.Context, id string) (models.Profile, error) {
	doc, err := d.store.Get(ctx, models.UsersCollection, id)
	if errors.Is(err, store.ErrNotFound) {
		return models.Profile{}, fmt.Errorf("%w: %s", ErrUnknownProfile, id)
	}
	if err != nil {
		return models.Profile{}, err
	}
	return models.ProfileFromFields(doc.ID, doc.Fields), nil
}

// List returns every registered profile.
func (d *StoreDirectory) List(ctx context.Context) ([]models.Profile, error) {
	docs, err := d.store.Query(ctx, usersQuery())
	if err != nil {
		return nil, err
	}
	return toProfiles(docs), nil
}

// Subscribe implements Directory.
func (d *StoreDirectory) Subscribe(ctx context.Context) (<-chan Snapshot, func()) {
	ctx, cancel := context.WithCancel(ctx)
	in, stopInner := d.store.Subscribe(ctx, usersQuery())
	out := make(chan Snapshot)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer close(out)
		for snap := range in {
			next := Snapshot{Profiles: toProfiles(snap.Documents), Err: snap.Err}
			select {
			case out <- next:
			case <-ctx.Done():
				return
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			stopInner()
			wg.Wait()
		})
	}
}

func usersQuery() store.Query {
	return store.Query{Collection: models.UsersCollection}
}

func toProfiles(docs []store.Document) []models.Profile {
	profiles := make([]models.Profile, 0, len(docs))
	for _, doc := range docs {
		profiles = append(profiles, models.ProfileFromFields(doc.ID, doc.Fields))
	}
	return profiles
}
