package proposal

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/trezcool/tribunal/core"
)

// DefaultKey is the KVStore key holding the proposal collection.
const DefaultKey = "proposals"

// Repository persists the whole proposal collection as one versioned value.
type Repository interface {
	// Load returns every proposal and the version of the collection (0 if nothing was ever saved).
	Load(ctx context.Context) ([]Proposal, int64, error)
	// Save replaces the collection if it is still at version, and returns the new version.
	// It returns ErrConflict when someone saved in between.
	Save(ctx context.Context, proposals []Proposal, version int64) (int64, error)
	// Watch sends the new version every time the collection changes, until ctx is done.
	Watch(ctx context.Context) (<-chan int64, error)
}

type kvRepository struct {
	store core.KVStore
	key   string
}

var _ Repository = (*kvRepository)(nil)

// NewRepository returns a Repository keeping the collection JSON-encoded under key in store.
func NewRepository(store core.KVStore, key string) Repository {
	if key == "" {
		key = DefaultKey
	}
	return &kvRepository{store: store, key: key}
}

func (repo *kvRepository) Load(ctx context.Context) ([]Proposal, int64, error) {
	entry, err := repo.store.Get(ctx, repo.key)
	if err != nil {
		if errors.Is(err, core.ErrKeyNotFound) {
			return []Proposal{}, 0, nil
		}
		return nil, 0, errors.Wrap(err, "getting proposals")
	}
	var proposals []Proposal
	if len(entry.Value) > 0 {
		if err = json.Unmarshal(entry.Value, &proposals); err != nil {
			return nil, 0, errors.Wrap(err, "decoding proposals")
		}
	}
	if proposals == nil {
		proposals = []Proposal{}
	}
	for i := range proposals {
		normalizeVotes(&proposals[i].Votes)
	}
	return proposals, entry.Version, nil
}

func (repo *kvRepository) Save(ctx context.Context, proposals []Proposal, version int64) (int64, error) {
	if proposals == nil {
		proposals = []Proposal{}
	}
	data, err := json.Marshal(proposals)
	if err != nil {
		return 0, errors.Wrap(err, "encoding proposals")
	}
	newVersion, err := repo.store.Put(ctx, repo.key, data, version)
	if err != nil {
		if errors.Is(err, core.ErrVersionConflict) {
			return 0, ErrConflict
		}
		return 0, errors.Wrap(err, "putting proposals")
	}
	return newVersion, nil
}

func (repo *kvRepository) Watch(ctx context.Context) (<-chan int64, error) {
	events, err := repo.store.Watch(ctx, repo.key)
	if err != nil {
		return nil, errors.Wrap(err, "watching proposals")
	}
	out := make(chan int64)
	go func() {
		defer close(out)
		for evt := range events {
			select {
			case out <- evt.Version:
			case <-ctx.Done():
				// drain so that the store can close its side
				for range events {
				}
				return
			}
		}
	}()
	return out, nil
}

func normalizeVotes(v *Votes) {
	if v.Maestros == nil {
		v.Maestros = []string{}
	}
	if v.Approvals == nil {
		v.Approvals = []string{}
	}
	if v.Rejections == nil {
		v.Rejections = []string{}
	}
}
