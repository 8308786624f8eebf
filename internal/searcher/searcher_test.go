package searcher

import (
	"context"
	"errors"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"
)

func TestFrontier(t *testing.T) {
	t.Run("KeepsBestL", func(t *testing.T) {
		f := NewFrontier(3)
		for i, d := range []float32{5, 1, 4, 2, 3} {
			f.Insert(Candidate{Slot: Slot(i), Distance: d})
		}
		var got []Candidate
		for c, ok := f.Next(); ok; c, ok = f.Next() {
			got = append(got, c)
		}
		want := []Candidate{{1, 1}, {3, 2}, {4, 3}}
		if len(got) != len(want) {
			t.Fatalf("expected %d items, got %d", len(want), len(got))
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("item %d: expected %v, got %v", i, want[i], got[i])
			}
		}
		if f.Insert(Candidate{Slot: 9, Distance: 3}) {
			t.Error("tie with worst and larger slot must be rejected")
		}
		if !f.Insert(Candidate{Slot: 0, Distance: 3}) {
			t.Error("tie with worst and smaller slot must be kept")
		}
	})

	t.Run("NextVisitsInOrder", func(t *testing.T) {
		f := NewFrontier(4)
		f.Insert(Candidate{Slot: 1, Distance: 2})
		f.Insert(Candidate{Slot: 2, Distance: 4})

		c, ok := f.Next()
		if !ok || c.Slot != 1 {
			t.Fatalf("expected slot 1, got %v", c)
		}

		// A closer insert moves the cursor back.
		f.Insert(Candidate{Slot: 3, Distance: 1})
		c, _ = f.Next()
		if c.Slot != 3 {
			t.Errorf("expected slot 3, got %v", c)
		}
		c, _ = f.Next()
		if c.Slot != 2 {
			t.Errorf("expected slot 2, got %v", c)
		}
		if _, ok := f.Next(); ok {
			t.Error("expected frontier to be exhausted")
		}
	})

	t.Run("ZeroCapacity", func(t *testing.T) {
		f := NewFrontier(0)
		if f.Insert(Candidate{Slot: 1}) {
			t.Error("zero-capacity frontier must reject")
		}
	})
}

func TestResults(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	all := make([]Candidate, 200)
	for i := range all {
		all[i] = Candidate{Slot: Slot(i), Distance: float32(rng.IntN(20))}
	}

	h := NewResults(10)
	for _, c := range all {
		h.Push(c)
	}
	if h.Len() != 10 || !h.Full() {
		t.Fatalf("expected full heap of 10, got %d", h.Len())
	}

	sort.Slice(all, func(i, j int) bool { return Better(all[i], all[j]) })

	w, _ := h.Worst()
	if w != all[9] {
		t.Errorf("expected worst %v, got %v", all[9], w)
	}

	got := h.Drain(nil)
	for i := range got {
		if got[i] != all[i] {
			t.Errorf("rank %d: expected %v, got %v", i, all[i], got[i])
		}
	}
	if h.Len() != 0 {
		t.Error("expected drained heap")
	}
}

func TestVisitedSet(t *testing.T) {
	v := NewVisitedSet(8)
	for _, s := range []Slot{0, 7, 63, 1000} {
		if !v.Visit(s) {
			t.Errorf("slot %d should be new", s)
		}
	}
	if v.Visit(7) {
		t.Error("slot 7 should already be visited")
	}
	if !v.Visited(1000) || v.Visited(2) {
		t.Error("unexpected visited state")
	}
	if v.Count() != 4 {
		t.Errorf("expected 4 visited, got %d", v.Count())
	}

	v.Reset()
	if v.Visited(7) || v.Visited(1000) || v.Count() != 0 {
		t.Error("reset did not clear visited slots")
	}
}

func TestPoolBlocksWhenExhausted(t *testing.T) {
	p := NewPool(1, 16, 8)
	ctx := context.Background()

	s1, err := p.Get(ctx, 8)
	if err != nil {
		t.Fatal(err)
	}

	short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if _, err := p.Get(short, 8); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var s2 *Scratch
	go func() {
		defer wg.Done()
		s2, err = p.Get(ctx, 4)
	}()

	s1.Visited.Visit(3)
	p.Put(s1)
	wg.Wait()

	if err != nil {
		t.Fatal(err)
	}
	if s2 != s1 {
		t.Error("expected the returned scratch to be reused")
	}
	if s2.Visited.Visited(3) || s2.Frontier.Cap() != 4 {
		t.Error("scratch was not reset")
	}
	p.Put(s2)
}

func TestScratchResetSearchKeepsPool(t *testing.T) {
	s := NewScratch(32, 4)
	s.Visited.Visit(5)
	s.Frontier.Insert(Candidate{Slot: 5, Distance: 1})
	s.Results.Push(Candidate{Slot: 5, Distance: 1})
	s.Expanded = append(s.Expanded, Candidate{Slot: 5, Distance: 1})
	s.Pool = append(s.Pool, Candidate{Slot: 5, Distance: 1})
	s.Hops = 3

	s.ResetSearch(8)

	if s.Visited.Visited(5) || s.Frontier.Len() != 0 || s.Results.Len() != 0 || len(s.Expanded) != 0 {
		t.Error("search state was not cleared")
	}
	if s.Frontier.Cap() != 8 {
		t.Errorf("expected frontier capacity 8, got %d", s.Frontier.Cap())
	}
	if len(s.Pool) != 1 || s.Hops != 3 {
		t.Error("pool and counters must survive ResetSearch")
	}

	s.Reset(4)
	if len(s.Pool) != 0 || s.Hops != 0 {
		t.Error("Reset must clear pool and counters")
	}
}
