package kibela

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// DefaultPathTTL is how long a resolved path is remembered.
const DefaultPathTTL = 10 * time.Minute

// PathLookup resolves a note path to its id.
type PathLookup interface {
	NoteIDFromPath(ctx context.Context, path string) (string, error)
}

// Resolver memoizes path lookups.
type Resolver struct {
	lookup PathLookup
	ids    *ttlcache.Cache[string, string]
}

// NewResolver returns a resolver that remembers successful lookups for ttl.
// Call Start to expire entries in the background and Stop to release it.
func NewResolver(lookup PathLookup, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = DefaultPathTTL
	}
	return &Resolver{
		lookup: lookup,
		ids: ttlcache.New(
			ttlcache.WithTTL[string, string](ttl),
			ttlcache.WithDisableTouchOnHit[string, string](),
		),
	}
}

// Resolve returns the note id for path. Failures are not remembered.
func (r *Resolver) Resolve(ctx context.Context, path string) (string, error) {
	if item := r.ids.Get(path); item != nil {
		return item.Value(), nil
	}
	id, err := r.lookup.NoteIDFromPath(ctx, path)
	if err != nil {
		return "", err
	}
	r.ids.Set(path, id, ttlcache.DefaultTTL)
	return id, nil
}

// Forget drops the remembered id for path.
func (r *Resolver) Forget(path string) {
	r.ids.Delete(path)
}

func (r *Resolver) Start() { r.ids.Start() }

func (r *Resolver) Stop() { r.ids.Stop() }
