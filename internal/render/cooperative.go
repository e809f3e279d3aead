package render

import (
	"context"

	"sync"

	"github.com/austencloud/tka-desktop-sub001/pkg/domain"
)

type renderJob struct {
	ctx   context.Context
	jobID string
	beats []domain.Beat
	opts  domain.RenderOptions
}

// cooperativePool renders one job at a time on a single worker goroutine,
// yielding between jobs so the submitting context never blocks on a render.
type cooperativePool struct {
	engine renderer
	sink   Sink

	mu        sync.Mutex
	queue     []renderJob
	pending   map[string]bool
	dropped   map[string]bool
	cancelled bool
	running   bool
}

func newCooperativePool(engine renderer, sink Sink) *cooperativePool {
	return &cooperativePool{
		engine:  engine,
		sink:    sink,
		pending: make(map[string]bool),
		dropped: make(map[string]bool),
	}
}

func (p *cooperativePool) Submit(ctx context.Context, jobID string, beats []domain.Beat, opts domain.RenderOptions) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancelled || p.pending[jobID] {
		return false
	}
	delete(p.dropped, jobID)
	p.pending[jobID] = true
	p.queue = append(p.queue, renderJob{ctx: ctx, jobID: jobID, beats: beats, opts: opts})
	if !p.running {
		p.running = true
		go p.loop()
	}
	return true
}

// loop drains the queue serially. One job is active at any moment.
func (p *cooperativePool) loop() {
	for {
		p.mu.Lock()
		if p.cancelled || len(p.queue) == 0 {
			p.running = false
			p.mu.Unlock()
			return
		}
		job := p.queue[0]
		p.queue = p.queue[1:]
		p.mu.Unlock()

		img, err := p.engine.RenderArtifact(job.ctx, job.beats, job.opts)
		if err != nil {
			err = domain.FailureOf(job.jobID, err, domain.FailureRender)
		} else {
			err = validate(job.jobID, img)
		}

		p.mu.Lock()
		delete(p.pending, job.jobID)
		drop := p.cancelled || p.dropped[job.jobID] || job.ctx.Err() != nil
		delete(p.dropped, job.jobID)
		p.mu.Unlock()
		if drop {
			continue
		}

		if err != nil {
			p.sink(Result{JobID: job.jobID, Err: err})
			continue
		}
		p.sink(Result{JobID: job.jobID, Image: img})
	}
}

func (p *cooperativePool) Cancel(jobID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pending[jobID] {
		return
	}
	// Remove from the queue if still waiting; if already active, mark it
	// so the late result is discarded.
	for i, job := range p.queue {
		if job.jobID == jobID {
			p.queue = append(p.queue[:i], p.queue[i+1:]...)
			delete(p.pending, jobID)
			return
		}
	}
	p.dropped[jobID] = true
}

func (p *cooperativePool) CancelAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cancelled = true
	p.queue = nil
	p.pending = make(map[string]bool)
	p.dropped = make(map[string]bool)
}
