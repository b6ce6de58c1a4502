package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"roomrelay/internal/core/ports"

	"go.uber.org/zap"
)

// RouterPool keeps a small set of pre-warmed routing contexts so room
// creation does not block on expensive engine setup. Take falls back to
// on-demand allocation when the pool is drained and always backfills
// asynchronously.
type RouterPool struct {
	engine  ports.Engine
	routers chan ports.Router
	closed  atomic.Bool
	logger  *zap.SugaredLogger
}

func NewRouterPool(ctx context.Context, engine ports.Engine, size int, logger *zap.SugaredLogger) (*RouterPool, error) {
	if size < 1 {
		size = 1
	}
	p := &RouterPool{
		engine:  engine,
		routers: make(chan ports.Router, size),
		logger:  logger,
	}
	for i := 0; i < size; i++ {
		router, err := engine.CreateRouter(ctx)
		if err != nil {
			p.Close()
			return nil, fmt.Errorf("warming router pool: %w", err)
		}
		p.routers <- router
	}
	return p, nil
}

// Take hands out a routing context. A pooled router is preferred; an
// empty pool falls through to direct allocation.
func (p *RouterPool) Take(ctx context.Context) (ports.Router, error) {
	select {
	case router := <-p.routers:
		go p.backfill()
		return router, nil
	default:
	}
	return p.engine.CreateRouter(ctx)
}

func (p *RouterPool) backfill() {
	if p.closed.Load() {
		return
	}
	router, err := p.engine.CreateRouter(context.Background())
	if err != nil {
		p.logger.Warnw("router pool backfill failed", "error", err)
		return
	}
	if p.closed.Load() {
		router.Close()
		return
	}
	select {
	case p.routers <- router:
	default:
		// Pool refilled by a concurrent backfill.
		router.Close()
	}
}

// Size reports how many warm routers are currently pooled.
func (p *RouterPool) Size() int {
	return len(p.routers)
}

// Close destroys every pooled router. Routers already taken belong to
// their rooms and are untouched.
func (p *RouterPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	for {
		select {
		case router := <-p.routers:
			router.Close()
		default:
			return
		}
	}
}
