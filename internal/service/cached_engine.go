package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Policy-Gate/policygate/internal/cache"
	"github.com/Policy-Gate/policygate/internal/domain/policy"
)

// LoaderFunc retrieves the policy document for a cache key. It may perform
// network or database I/O; a nil document (with nil error) means no policy
// exists for the key.
type LoaderFunc func(ctx context.Context, key cache.Key) (*policy.Document, error)

// CompilerFunc turns a loaded document into compiled rules. Synchronous and pure.
type CompilerFunc func(doc *policy.Document) ([]policy.CompiledRule, error)

// CachedPolicyEngine memoizes a loader/compiler pair behind the policy
// cache. Concurrent misses for the same key are not coalesced: each caller
// loads independently and last write wins, which is harmless for identical
// documents. Callers must not assume single-flight behavior.
type CachedPolicyEngine struct {
	cache    *cache.Cache
	loader   LoaderFunc
	compiler CompilerFunc
	logger   *slog.Logger

	pruneEvery time.Duration
	done       chan struct{}
	closeOnce  sync.Once
}

// Option configures a CachedPolicyEngine.
type Option func(*CachedPolicyEngine)

// WithPruneInterval runs a background sweep of expired cache entries at the
// given interval. The sweep stops when Close is called. A zero or negative
// interval disables it.
func WithPruneInterval(d time.Duration) Option {
	return func(e *CachedPolicyEngine) {
		e.pruneEvery = d
	}
}

// NewCachedPolicyEngine creates a cached engine over the given loader and compiler.
func NewCachedPolicyEngine(c *cache.Cache, loader LoaderFunc, compiler CompilerFunc, logger *slog.Logger, opts ...Option) *CachedPolicyEngine {
	e := &CachedPolicyEngine{
		cache:    c,
		loader:   loader,
		compiler: compiler,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.pruneEvery > 0 {
		e.done = make(chan struct{})
		go e.cache.PruneLoop(e.done, e.pruneEvery)
	}
	return e
}

// Close stops the background prune sweep, if one was started. Safe to call
// more than once.
func (e *CachedPolicyEngine) Close() {
	e.closeOnce.Do(func() {
		if e.done != nil {
			close(e.done)
		}
	})
}

// GetPolicy returns the cached compiled policy for the key, loading and
// compiling on a miss. A nil loader result returns (nil, nil) and is not
// cached, so a policy created later is picked up on the next call. Compile
// failures are fatal configuration errors and propagate.
func (e *CachedPolicyEngine) GetPolicy(ctx context.Context, key cache.Key) (*cache.Entry, error) {
	k := key.String()

	if entry := e.cache.Get(k); entry != nil {
		return entry, nil
	}

	doc, err := e.loader(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load policy %q: %w", k, err)
	}
	if doc == nil {
		return nil, nil
	}

	rules, err := e.compiler(doc)
	if err != nil {
		return nil, fmt.Errorf("compile policy %q: %w", k, err)
	}

	entry := &cache.Entry{
		Document:      doc,
		CompiledRules: rules,
		Fingerprint:   policy.Fingerprint(doc),
	}
	e.cache.Set(k, entry)

	e.logger.Debug("policy compiled and cached",
		"key", k,
		"rules", len(rules),
		"fingerprint", fmt.Sprintf("%016x", entry.Fingerprint),
	)

	return entry, nil
}

// Preload fetches the given keys eagerly and returns how many loaded
// successfully. Individual failures are logged and skipped; the batch
// never aborts.
func (e *CachedPolicyEngine) Preload(ctx context.Context, keys []cache.Key) int {
	loaded := 0
	for _, key := range keys {
		entry, err := e.GetPolicy(ctx, key)
		if err != nil {
			e.logger.Warn("preload failed", "key", key.String(), "error", err)
			continue
		}
		if entry != nil {
			loaded++
		}
	}
	return loaded
}

// Invalidate removes a single cached policy.
func (e *CachedPolicyEngine) Invalidate(key cache.Key) bool {
	return e.cache.Invalidate(key.String())
}

// InvalidateTenant removes every cached policy for the tenant.
func (e *CachedPolicyEngine) InvalidateTenant(tenantID string) int {
	return e.cache.InvalidateByTenant(tenantID)
}

// InvalidateRepo removes every cached policy for the tenant's repo.
func (e *CachedPolicyEngine) InvalidateRepo(tenantID, repo string) int {
	return e.cache.InvalidateByRepo(tenantID, repo)
}

// CacheStats exposes the underlying cache statistics.
func (e *CachedPolicyEngine) CacheStats() cache.Stats {
	return e.cache.Stats()
}
