package searcher

import (
	"context"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Pool hands out at most Size scratches at a time. Scratches are created
// lazily and reused.
type Pool struct {
	sem  *semaphore.Weighted
	size int

	mu   sync.Mutex
	free []*Scratch
	n    int
	l    int
}

// NewPool creates a pool of at most size scratches for a graph of n slots,
// default search list l.
func NewPool(size, n, l int) *Pool {
	size = max(size, 1)
	return &Pool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
		free: make([]*Scratch, 0, size),
		n:    n,
		l:    l,
	}
}

// Size returns the maximum number of scratches in use at once.
func (p *Pool) Size() int { return p.size }

// Get returns a reset scratch for a search list of l candidates. It blocks
// while all scratches are in use and returns ctx.Err() if ctx ends first.
func (p *Pool) Get(ctx context.Context, l int) (*Scratch, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	p.mu.Lock()
	var s *Scratch
	if k := len(p.free); k > 0 {
		s = p.free[k-1]
		p.free = p.free[:k-1]
	}
	n, dl := p.n, p.l
	p.mu.Unlock()

	if s == nil {
		s = NewScratch(n, max(l, dl))
	}
	s.Reset(l)
	return s, nil
}

// Put returns s to the pool and wakes one waiting Get.
func (p *Pool) Put(s *Scratch) {
	if s == nil {
		return
	}
	p.mu.Lock()
	p.free = append(p.free, s)
	p.mu.Unlock()
	p.sem.Release(1)
}

// Resize updates the slot count used to size new scratches. Existing
// visited sets grow on demand.
func (p *Pool) Resize(n int) {
	p.mu.Lock()
	p.n = n
	p.mu.Unlock()
}
