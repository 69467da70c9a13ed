package admincred

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	gwerrors "github.com/tendant/idm-gateway/pkg/errors"
	"github.com/tendant/idm-gateway/pkg/metrics"
)

const singleflightKey = "admin-credential"

// Cached reuses a credential until shortly before it expires and collapses
// concurrent acquisitions into a single grant. Failed acquisitions are never
// cached.
type Cached struct {
	next    Acquirer
	skew    time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	group singleflight.Group

	mu     sync.Mutex
	cred   Credential
	cached bool
}

// CachedOption is a function that configures a Cached acquirer
type CachedOption func(*Cached)

// WithClock replaces time.Now
func WithClock(now func() time.Time) CachedOption {
	return func(c *Cached) {
		c.now = now
	}
}

// WithCacheMetrics counts cache hits on m
func WithCacheMetrics(m *metrics.Metrics) CachedOption {
	return func(c *Cached) {
		c.metrics = m
	}
}

// NewCached wraps next. A credential is reacquired once it is within skew of
// its expiry; credentials without an expiry are not reused.
func NewCached(next Acquirer, skew time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		next: next,
		skew: skew,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cached) Acquire(ctx context.Context) (Credential, error) {
	if cred, ok := c.current(); ok {
		c.metrics.IncAdminCredential("cache")
		return cred, nil
	}

	ch := c.group.DoChan(singleflightKey, func() (interface{}, error) {
		if cred, ok := c.current(); ok {
			return cred, nil
		}
		// detached: the result is shared with every waiting caller
		cred, err := c.next.Acquire(context.WithoutCancel(ctx))
		if err != nil {
			return Credential{}, err
		}
		c.store(cred)
		return cred, nil
	})

	select {
	case <-ctx.Done():
		return Credential{}, gwerrors.ProviderUnavailable(ctx.Err(), "client credentials grant")
	case res := <-ch:
		if res.Err != nil {
			return Credential{}, res.Err
		}
		return res.Val.(Credential), nil
	}
}

// Invalidate drops the cached credential, e.g. after the provider rejected it.
func (c *Cached) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = Credential{}
	c.cached = false
}

func (c *Cached) current() (Credential, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.cached || c.cred.Expiry.IsZero() {
		return Credential{}, false
	}
	if !c.now().Before(c.cred.Expiry.Add(-c.skew)) {
		return Credential{}, false
	}
	return c.cred, true
}

func (c *Cached) store(cred Credential) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cred = cred
	c.cached = true
}
