package intrinsics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/jsrealm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/jsrealm/internal/logging"
)

var (
	ErrPoolClosed = errors.New("intrinsics pool is closed")
	ErrTimeout    = errors.New("intrinsics acquisition timeout")
)

// PoolConfig configures a Pool.
type PoolConfig struct {
	Size             int
	Timeout          time.Duration
	MaxCallStackSize int
	Logger           *zap.Logger
	Metrics          *monitoring.Metrics
}

// Pool keeps repaired intrinsics sets ready so that creating a root
// context does not pay for runtime construction and repair. Sets are
// single use: an acquired set belongs to its root context for good, and
// the pool refills in the background.
type Pool struct {
	config  PoolConfig
	fresh   Fresh
	sets    chan *Set
	refill  chan struct{}
	done    chan struct{}
	wg      sync.WaitGroup
	log     *zap.Logger
	metrics *monitoring.Metrics

	mu     sync.RWMutex
	closed bool
}

// NewPool creates a pool and fills it before returning.
func NewPool(config PoolConfig) (*Pool, error) {
	if config.Size <= 0 {
		config.Size = 4
	}
	if config.Timeout <= 0 {
		config.Timeout = 5 * time.Second
	}

	log := logging.OrNop(config.Logger).Named("pool")
	pool := &Pool{
		config:  config,
		fresh:   Fresh{MaxCallStackSize: config.MaxCallStackSize, Logger: config.Logger},
		sets:    make(chan *Set, config.Size),
		refill:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		log:     log,
		metrics: config.Metrics,
	}

	// Pre-create sets
	for i := 0; i < config.Size; i++ {
		set, err := pool.fresh.Acquire(context.Background())
		if err != nil {
			return nil, err
		}
		pool.sets <- set
	}
	pool.metrics.SetPoolAvailable(len(pool.sets))

	pool.wg.Add(1)
	go pool.refillLoop()

	return pool, nil
}

// Acquire takes a set from the pool, waiting at most the configured
// timeout.
func (p *Pool) Acquire(ctx context.Context) (*Set, error) {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		p.metrics.RecordPoolAcquire("closed")
		return nil, ErrPoolClosed
	}

	timer := time.NewTimer(p.config.Timeout)
	defer timer.Stop()

	select {
	case set := <-p.sets:
		p.metrics.RecordPoolAcquire("ok")
		p.metrics.SetPoolAvailable(len(p.sets))
		p.requestRefill()
		return set, nil
	case <-ctx.Done():
		p.metrics.RecordPoolAcquire("canceled")
		return nil, ctx.Err()
	case <-p.done:
		p.metrics.RecordPoolAcquire("closed")
		return nil, ErrPoolClosed
	case <-timer.C:
		p.metrics.RecordPoolAcquire("timeout")
		return nil, ErrTimeout
	}
}

func (p *Pool) requestRefill() {
	select {
	case p.refill <- struct{}{}:
	default:
	}
}

func (p *Pool) refillLoop() {
	defer p.wg.Done()
	for {
		select {
		case <-p.done:
			return
		case <-p.refill:
		}

		for len(p.sets) < cap(p.sets) {
			set, err := p.fresh.Acquire(context.Background())
			if err != nil {
				p.log.Error("refill failed", zap.Error(err))
				break
			}
			select {
			case p.sets <- set:
				p.metrics.SetPoolAvailable(len(p.sets))
			case <-p.done:
				return
			}
		}
	}
}

// Close stops the refill goroutine and drops the ready sets.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.done)
	p.mu.Unlock()

	p.wg.Wait()
	for {
		select {
		case <-p.sets:
		default:
			p.metrics.SetPoolAvailable(0)
			return nil
		}
	}
}

// Stats returns pool statistics
func (p *Pool) Stats() map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return map[string]interface{}{
		"size":      p.config.Size,
		"available": len(p.sets),
		"closed":    p.closed,
	}
}
