package source

import (
	"context"
	"sync"
)

const DefaultPipeBuffer = 64

// Pipe is the Subscription adapters hand out. Producers call Send from any
// goroutine; Close and End may race with in-flight sends safely.
type Pipe struct {
	ch      chan Change
	done    chan struct{}
	mu      sync.RWMutex
	once    sync.Once
	err     error
	onClose func() error
}

func NewPipe(buffer int, onClose func() error) *Pipe {
	return &Pipe{
		ch:      make(chan Change, buffer),
		done:    make(chan struct{}),
		onClose: onClose,
	}
}

// Send blocks until the change is queued, the pipe ends or ctx is done. It
// reports whether the change was queued.
func (p *Pipe) Send(ctx context.Context, c Change) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.ch <- c:
		return true
	case <-p.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// TrySend queues without blocking, for callbacks that must not stall.
func (p *Pipe) TrySend(c Change) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	select {
	case <-p.done:
		return false
	default:
	}

	select {
	case p.ch <- c:
		return true
	default:
		return false
	}
}

func (p *Pipe) Changes() <-chan Change {
	return p.ch
}

func (p *Pipe) Done() <-chan struct{} {
	return p.done
}

func (p *Pipe) Err() error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// End terminates the pipe with err, the cause reported by Err.
func (p *Pipe) End(err error) error {
	var closeErr error
	p.once.Do(func() {
		close(p.done)
		p.mu.Lock()
		p.err = err
		close(p.ch)
		p.mu.Unlock()
		if p.onClose != nil {
			closeErr = p.onClose()
		}
	})
	return closeErr
}

func (p *Pipe) Close() error {
	return p.End(nil)
}
