package app

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/config"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/jsrealm/internal/logging"
	"github.com/GriffinCanCode/jsrealm/internal/shared/id"
	"github.com/GriffinCanCode/jsrealm/realm"
	"github.com/GriffinCanCode/jsrealm/realm/intrinsics"
	"github.com/GriffinCanCode/jsrealm/realm/scope"
)

var (
	// ErrNotFound is returned for an ID with no live context.
	ErrNotFound = errors.New("context not found")
	// ErrInvalidID is returned for a malformed context ID.
	ErrInvalidID = errors.New("invalid context id")
)

// Entry is one live context.
type Entry struct {
	Context   *realm.Context
	ParentID  string
	CreatedAt time.Time
}

// Stats summarizes the manager.
type Stats struct {
	Total   int                    `json:"total"`
	Roots   int                    `json:"roots"`
	Nested  int                    `json:"nested"`
	Pool    map[string]interface{} `json:"pool,omitempty"`
	Metrics monitoring.Snapshot    `json:"metrics"`
}

// Manager creates sandbox contexts from one configuration and tracks the
// live ones.
type Manager struct {
	contexts sync.Map

	cfg     *config.Config
	writes  scope.WritePolicy
	log     *zap.Logger
	metrics *monitoring.Metrics
	tracer  *tracing.Tracer
	limiter *rate.Limiter
	pool    *intrinsics.Pool
}

// NewManager builds a manager. Metrics are registered on reg when enabled
// in cfg; a nil reg selects the default registerer.
func NewManager(cfg *config.Config, log *zap.Logger, reg prometheus.Registerer) (*Manager, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	writes, err := scope.ParseWritePolicy(cfg.Sandbox.EndowmentWrites)
	if err != nil {
		return nil, err
	}

	m := &Manager{
		cfg:    cfg,
		writes: writes,
		log:    logging.OrNop(log),
	}
	if cfg.Metrics.Enabled {
		m.metrics = monitoring.NewMetrics(reg)
	}
	if cfg.Tracing.Enabled {
		m.tracer = tracing.New(m.log)
	}
	if cfg.Limit.PerSecond > 0 {
		burst := cfg.Limit.Burst
		if burst < 1 {
			burst = 1
		}
		m.limiter = rate.NewLimiter(rate.Limit(cfg.Limit.PerSecond), burst)
	}

	if cfg.Pool.Size > 0 {
		pool, err := intrinsics.NewPool(intrinsics.PoolConfig{
			Size:             cfg.Pool.Size,
			Timeout:          cfg.Pool.AcquireTimeout.Std(),
			MaxCallStackSize: cfg.Sandbox.MaxCallStackSize,
			Logger:           m.log,
			Metrics:          m.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create intrinsics pool: %w", err)
		}
		m.pool = pool
	}

	return m, nil
}

// Spawn creates a context. An empty parentID creates a top-level root
// context running the configured shims.
func (m *Manager) Spawn(ctx context.Context, parentID string, kind realm.Kind) (*realm.Context, error) {
	cfg := m.contextConfig()

	var c *realm.Context
	var err error
	if parentID == "" {
		if kind != realm.KindRoot {
			return nil, realm.ErrNoParent
		}
		c, err = realm.NewRootContext(ctx, cfg)
	} else {
		var parent *realm.Context
		parent, err = m.lookup(parentID)
		if err != nil {
			return nil, err
		}
		// shims are inherited from the parent's root, not repeated
		cfg.Shims = nil
		c, err = realm.CreateContext(ctx, parent, kind, cfg)
	}
	if err != nil {
		return nil, err
	}

	created, err := id.Timestamp(c.ID().String())
	if err != nil {
		created = time.Now()
	}
	m.contexts.Store(c.ID().String(), &Entry{
		Context:   c,
		ParentID:  parentID,
		CreatedAt: created,
	})
	m.log.Info("context spawned",
		zap.String("context", c.ID().String()),
		zap.String("kind", kind.String()),
		zap.String("parent", parentID))
	return c, nil
}

// Evaluate runs src in the live context id. When a rate limit is
// configured it waits for a token first, giving up when ctx is done.
func (m *Manager) Evaluate(ctx context.Context, contextID, src string, endowments scope.Endowments, opts ...realm.EvalOption) (goja.Value, error) {
	c, err := m.lookup(contextID)
	if err != nil {
		return nil, err
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit: %w", err)
		}
	}
	return c.EvaluateContext(ctx, src, endowments, opts...)
}

func (m *Manager) contextConfig() realm.Config {
	sb := m.cfg.Sandbox
	cfg := realm.Config{
		Shims:               append([]string(nil), sb.Shims...),
		SloppyGlobals:       sb.SloppyGlobals,
		ConfigurableGlobals: sb.ConfigurableGlobals,
		EndowmentWrites:     m.writes,
		Logger:              m.log,
		Metrics:             m.metrics,
		Tracer:              m.tracer,
	}
	if m.pool != nil {
		cfg.Source = m.pool
	} else {
		cfg.Source = intrinsics.Fresh{MaxCallStackSize: sb.MaxCallStackSize, Logger: m.log}
	}
	return cfg
}

func (m *Manager) lookup(contextID string) (*realm.Context, error) {
	if !id.IsValid(contextID) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidID, contextID)
	}
	c, ok := m.Get(contextID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, contextID)
	}
	return c, nil
}

// Get returns a live context by ID.
func (m *Manager) Get(contextID string) (*realm.Context, bool) {
	v, ok := m.contexts.Load(contextID)
	if !ok {
		return nil, false
	}
	return v.(*Entry).Context, true
}

// List returns the live contexts, oldest first. Context IDs are
// monotonic ULIDs, so ID order is creation order.
func (m *Manager) List() []*Entry {
	var entries []*Entry
	m.contexts.Range(func(_, value interface{}) bool {
		entries = append(entries, value.(*Entry))
		return true
	})
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Context.ID() < entries[j].Context.ID()
	})
	return entries
}

// Close forgets a context and every context spawned from it.
func (m *Manager) Close(contextID string) bool {
	if _, ok := m.contexts.Load(contextID); !ok {
		return false
	}

	// Close children first
	m.contexts.Range(func(_, value interface{}) bool {
		entry := value.(*Entry)
		if entry.ParentID == contextID {
			m.Close(entry.Context.ID().String())
		}
		return true
	})

	m.contexts.Delete(contextID)
	return true
}

// Stats returns manager statistics
func (m *Manager) Stats() Stats {
	var stats Stats
	m.contexts.Range(func(_, value interface{}) bool {
		entry := value.(*Entry)
		stats.Total++
		if entry.Context.Kind() == realm.KindRoot {
			stats.Roots++
		} else {
			stats.Nested++
		}
		return true
	})
	if m.pool != nil {
		stats.Pool = m.pool.Stats()
	}
	stats.Metrics = m.metrics.Snapshot()
	return stats
}

// Shutdown forgets every context, flushes pending spans and closes the
// pool.
func (m *Manager) Shutdown() error {
	m.contexts.Range(func(key, _ interface{}) bool {
		m.contexts.Delete(key)
		return true
	})
	m.tracer.Close()
	if m.pool != nil {
		return m.pool.Close()
	}
	return nil
}
