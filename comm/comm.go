// Package comm runs a fixed number of ranks as goroutines inside one process
// and provides the collective and point-to-point operations the distributed
// discretization needs: barrier, scans, reductions, gathers and a sparse
// all-to-all exchange.
//
// Every collective must be entered by every rank, in the same order, as with
// MPI. A rank that returns an error aborts the run: collectives still pending
// on the other ranks return ErrAborted instead of blocking forever.
package comm

import (
	"errors"
	"fmt"
	"log"
	"sync"
)

var (
	ErrAborted  = errors.New("comm: run aborted by another rank")
	ErrMismatch = errors.New("comm: mismatched collective participation")
)

type World struct {
	NP        int
	mb        *MailBox
	abortOnce sync.Once
}

func (w *World) Abort() {
	w.abortOnce.Do(func() { close(w.mb.abort) })
}

// Comm is the handle a single rank uses to talk to the others.
type Comm struct {
	rank  int
	world *World
}

func (c *Comm) Rank() int { return c.rank }
func (c *Comm) Size() int { return c.world.NP }

// Run executes fn once per rank, each on its own goroutine, and waits for all
// ranks to return.
func Run(NP int, fn func(c *Comm) error) error {
	if NP < 1 {
		return fmt.Errorf("comm: number of ranks must be positive, got %d", NP)
	}
	var (
		w    = &World{NP: NP, mb: NewMailBox(NP)}
		errs = make([]error, NP)
		wg   = sync.WaitGroup{}
	)
	for rank := 0; rank < NP; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					errs[rank] = fmt.Errorf("rank %d: panic: %v", rank, r)
					w.Abort()
				}
			}()
			if err := fn(&Comm{rank: rank, world: w}); err != nil {
				errs[rank] = fmt.Errorf("rank %d: %w", rank, err)
				w.Abort()
			}
		}(rank)
	}
	wg.Wait()
	var (
		failed  []error
		aborted error
	)
	for _, err := range errs {
		switch {
		case err == nil:
		case errors.Is(err, ErrAborted):
			aborted = err
		default:
			failed = append(failed, err)
		}
	}
	if len(failed) != 0 {
		return errors.Join(failed...)
	}
	return aborted
}

func (c *Comm) send(to int, msg any) error {
	return c.world.mb.PostMessage(c.rank, to, msg)
}

func (c *Comm) recv(from int) (any, error) {
	return c.world.mb.ReceiveMessage(c.rank, from)
}

// AllGather returns the value contributed by every rank, indexed by rank.
func AllGather[T any](c *Comm, val T) (all []T, err error) {
	np := c.Size()
	for r := 0; r < np; r++ {
		if r != c.rank {
			if err = c.send(r, val); err != nil {
				return nil, err
			}
		}
	}
	all = make([]T, np)
	all[c.rank] = val
	for r := 0; r < np; r++ {
		if r == c.rank {
			continue
		}
		var msg any
		if msg, err = c.recv(r); err != nil {
			return nil, err
		}
		v, ok := msg.(T)
		if !ok {
			return nil, fmt.Errorf("%w: rank %d expected %T from rank %d, got %T",
				ErrMismatch, c.rank, val, r, msg)
		}
		all[r] = v
	}
	return
}

// Exchange is a sparse all-to-all: out[r] is delivered to rank r and the
// returned map holds, keyed by source rank, the non-empty slices addressed to
// this rank. Every rank must call it, even with nothing to send.
func Exchange[T any](c *Comm, out map[int][]T) (in map[int][]T, err error) {
	np := c.Size()
	for r := range out {
		if r < 0 || r >= np {
			return nil, fmt.Errorf("comm: exchange target rank %d out of range [0,%d)", r, np)
		}
	}
	for r := 0; r < np; r++ {
		if r != c.rank {
			if err = c.send(r, out[r]); err != nil {
				return nil, err
			}
		}
	}
	in = make(map[int][]T)
	if len(out[c.rank]) != 0 {
		in[c.rank] = out[c.rank]
	}
	for r := 0; r < np; r++ {
		if r == c.rank {
			continue
		}
		var msg any
		if msg, err = c.recv(r); err != nil {
			return nil, err
		}
		v, ok := msg.([]T)
		if !ok {
			return nil, fmt.Errorf("%w: rank %d expected %T from rank %d, got %T",
				ErrMismatch, c.rank, v, r, msg)
		}
		if len(v) != 0 {
			in[r] = v
		}
	}
	return
}

type barrierToken struct{}

// Barrier returns once every rank has entered it.
func (c *Comm) Barrier() error {
	_, err := AllGather(c, barrierToken{})
	return err
}

func (c *Comm) AllGatherInts(val int) ([]int, error) {
	return AllGather(c, val)
}

// ExScanInt is the exclusive prefix sum of val over ranks: rank 0 gets 0,
// rank r gets the sum of the values of ranks 0..r-1.
func (c *Comm) ExScanInt(val int) (int, error) {
	all, err := AllGather(c, val)
	if err != nil {
		return 0, err
	}
	var sum int
	for r := 0; r < c.rank; r++ {
		sum += all[r]
	}
	return sum, nil
}

func (c *Comm) AllReduceSumInt(val int) (int, error) {
	all, err := AllGather(c, val)
	if err != nil {
		return 0, err
	}
	var sum int
	for _, v := range all {
		sum += v
	}
	return sum, nil
}

// AllReduceSumFloat sums in rank order so that every rank gets bit-identical
// results.
func (c *Comm) AllReduceSumFloat(val float64) (float64, error) {
	all, err := AllGather(c, val)
	if err != nil {
		return 0, err
	}
	var sum float64
	for _, v := range all {
		sum += v
	}
	return sum, nil
}

func (c *Comm) AllReduceMaxFloat(val float64) (float64, error) {
	all, err := AllGather(c, val)
	if err != nil {
		return 0, err
	}
	max := all[0]
	for _, v := range all[1:] {
		if v > max {
			max = v
		}
	}
	return max, nil
}

// Log prints from rank 0 only.
func (c *Comm) Log(format string, args ...any) {
	if c.rank == 0 {
		log.Printf(format, args...)
	}
}

// LogAll prints from every rank, prefixed with the rank.
func (c *Comm) LogAll(format string, args ...any) {
	log.Printf("[%d] "+format, append([]any{c.rank}, args...)...)
}
