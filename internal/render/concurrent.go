package render

import (
	"context"
	"sync"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

// concurrentPool dispatches one worker goroutine per job.
type concurrentPool struct {
	engine renderer
	sink   Sink

	mu        sync.Mutex
	inflight  map[string]context.CancelFunc
	cancelled bool
}

func newConcurrentPool(engine renderer, sink Sink) *concurrentPool {
	return &concurrentPool{
		engine:   engine,
		sink:     sink,
		inflight: make(map[string]context.CancelFunc),
	}
}

func (p *concurrentPool) Submit(ctx context.Context, jobID string, beats []domain.Beat, opts domain.RenderOptions) bool {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return false
	}
	if _, dup := p.inflight[jobID]; dup {
		p.mu.Unlock()
		return false
	}
	jobCtx, cancel := context.WithCancel(ctx)
	p.inflight[jobID] = cancel
	p.mu.Unlock()

	go func() {
		defer cancel()

		img, err := p.engine.RenderArtifact(jobCtx, beats, opts)
		if err != nil {
			err = domain.FailureOf(jobID, err, domain.FailureRender)
		} else {
			err = validate(jobID, img)
		}

		p.mu.Lock()
		_, live := p.inflight[jobID]
		delete(p.inflight, jobID)
		dropped := p.cancelled || !live || jobCtx.Err() != nil
		p.mu.Unlock()
		if dropped {
			return
		}

		if err != nil {
			p.sink(Result{JobID: jobID, Err: err})
			return
		}
		p.sink(Result{JobID: jobID, Image: img})
	}()
	return true
}

func (p *concurrentPool) Cancel(jobID string) {
	p.mu.Lock()
	cancel, ok := p.inflight[jobID]
	delete(p.inflight, jobID)
	p.mu.Unlock()
	if ok {
		cancel()
	}
}

func (p *concurrentPool) CancelAll() {
	p.mu.Lock()
	p.cancelled = true
	cancels := make([]context.CancelFunc, 0, len(p.inflight))
	for _, c := range p.inflight {
		cancels = append(cancels, c)
	}
	p.inflight = make(map[string]context.CancelFunc)
	p.mu.Unlock()

	for _, c := range cancels {
		c()
	}
}
