package driver

import (
	"context"
	"io"
	"sync"
)

// control carries the user-issued pause/resume/cancel signals for one
// in-flight item.
type control struct {
	cancel context.CancelFunc

	mu     sync.Mutex
	paused bool
	resume chan struct{}
}

func newControl(cancel context.CancelFunc) *control {
	return &control{
		cancel: cancel,
		resume: make(chan struct{}),
	}
}

func (c *control) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		c.paused = true
		c.resume = make(chan struct{})
	}
}

func (c *control) unpause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		c.paused = false
		close(c.resume)
	}
}

// wait blocks while paused, until resume or cancellation.
func (c *control) wait(ctx context.Context) error {
	c.mu.Lock()
	paused := c.paused
	resume := c.resume
	c.mu.Unlock()

	if !paused {
		return ctx.Err()
	}
	select {
	case <-resume:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// progressReader reports percentage progress as the store consumes the
// file, and parks between reads while the item is paused. The transfer
// itself stays blocked inside the store call; pausing costs nothing
// beyond an idle connection.
type progressReader struct {
	r       io.Reader
	ctx     context.Context
	ctrl    *control
	total   int64
	read    int64
	lastPct int
	report  func(pct int)
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		return 0, err
	}
	if p.ctrl != nil {
		if err := p.ctrl.wait(p.ctx); err != nil {
			return 0, err
		}
	}

	n, err := p.r.Read(b)
	if n > 0 && p.total > 0 {
		p.read += int64(n)
		pct := int(p.read * 100 / p.total)
		if pct > 100 {
			pct = 100
		}
		if pct > p.lastPct {
			p.lastPct = pct
			if p.report != nil {
				p.report(pct)
			}
		}
	}
	return n, err
}
