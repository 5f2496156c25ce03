// Package versionsrc implements the two-tier versions-list cache of spec
// §3/§4.2 step 1: a process-local hot cache for repeated lookups within one
// `up` run, backed by the ledger's persisted cache for cross-process reuse,
// with stale-while-error fallback when a refresh fails.
package versionsrc

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jellydator/ttlcache/v3"
	"github.com/jonboulle/clockwork"

	"github.com/upkit-dev/upkit/internal/errs"
	"github.com/upkit-dev/upkit/internal/ledger"
)

// Fetcher retrieves the current candidate version list from a remote index
// (a registry, a GitHub releases feed, a mise plugin's version list, ...).
type Fetcher func(ctx context.Context) ([]string, error)

// Source is the process-wide versions-list cache.
type Source struct {
	ledger *ledger.Ledger
	hot    *ttlcache.Cache[string, []string]
	clock  clockwork.Clock
}

// New constructs a Source backed by l. The hot cache's own TTL is set per
// Versions call since different backends use different remote TTLs; the
// cache instance itself just holds whatever each call inserts until its
// per-item expiry.
func New(l *ledger.Ledger, clock clockwork.Clock) *Source {
	cache := ttlcache.New[string, []string]()
	go cache.Start()
	return &Source{ledger: l, hot: cache, clock: clock}
}

// Close stops the hot cache's background janitor goroutine.
func (s *Source) Close() {
	s.hot.Stop()
}

// Versions resolves the candidate list for key, following spec §4.2 step 1:
// fresh hot-cache hit, then fresh ledger-persisted hit, then a network
// fetch (retried with exponential backoff), falling back to a stale
// ledger-persisted row if the fetch fails. stale reports whether the
// returned list came from that fallback path (callers should warn).
func (s *Source) Versions(ctx context.Context, key string, ttl time.Duration, fetch Fetcher) (versions []string, stale bool, err error) {
	if item := s.hot.Get(key); item != nil {
		return item.Value(), false, nil
	}

	now := s.clock.Now().Unix()

	if persisted, perr := s.ledger.GetVersionsCache(ctx, key); perr == nil && persisted != nil {
		if now-persisted.FetchedAt < int64(ttl.Seconds()) {
			var vs []string
			if jerr := json.Unmarshal([]byte(persisted.VersionsJSON), &vs); jerr == nil {
				s.hot.Set(key, vs, ttl)
				return vs, false, nil
			}
		}
	}

	fetched, ferr := fetchWithRetry(ctx, fetch)
	if ferr == nil {
		if jsonBytes, jerr := json.Marshal(fetched); jerr == nil {
			_ = s.ledger.SetVersionsCache(ctx, key, string(jsonBytes), now)
		}
		s.hot.Set(key, fetched, ttl)
		return fetched, false, nil
	}

	if persisted, perr := s.ledger.GetVersionsCache(ctx, key); perr == nil && persisted != nil {
		var vs []string
		if jerr := json.Unmarshal([]byte(persisted.VersionsJSON), &vs); jerr == nil {
			return vs, true, nil
		}
	}

	return nil, false, errs.Network("fetching versions list for "+key, ferr)
}

// fetchWithRetry wraps fetch in cenkalti/backoff's exponential strategy,
// bounded so a single resolve never blocks an `up` run indefinitely.
func fetchWithRetry(ctx context.Context, fetch Fetcher) ([]string, error) {
	var result []string
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)

	err := backoff.Retry(func() error {
		vs, err := fetch(ctx)
		if err != nil {
			return err
		}
		result = vs
		return nil
	}, policy)

	return result, err
}
