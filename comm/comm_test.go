package comm

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectives(t *testing.T) {
	for NP := 1; NP <= 4; NP++ {
		var (
			mu      sync.Mutex
			offsets = make([]int, NP)
			totals  = make([]int, NP)
		)
		err := Run(NP, func(c *Comm) error {
			local := c.Rank() + 1
			off, err := c.ExScanInt(local)
			if err != nil {
				return err
			}
			total, err := c.AllReduceSumInt(local)
			if err != nil {
				return err
			}
			if err = c.Barrier(); err != nil {
				return err
			}
			fmax, err := c.AllReduceMaxFloat(float64(c.Rank()))
			if err != nil {
				return err
			}
			assert.Equal(t, float64(c.Size()-1), fmax)
			fsum, err := c.AllReduceSumFloat(0.5)
			if err != nil {
				return err
			}
			assert.Equal(t, 0.5*float64(c.Size()), fsum)
			mu.Lock()
			offsets[c.Rank()], totals[c.Rank()] = off, total
			mu.Unlock()
			return nil
		})
		require.NoError(t, err)
		expOff := 0
		for r := 0; r < NP; r++ {
			assert.Equal(t, expOff, offsets[r])
			assert.Equal(t, NP*(NP+1)/2, totals[r])
			expOff += r + 1
		}
	}
}

func TestExchange(t *testing.T) {
	NP := 4
	err := Run(NP, func(c *Comm) error {
		// Each rank sends its own rank id to the next rank only
		out := map[int][]int{(c.Rank() + 1) % NP: {c.Rank(), c.Rank() * 10}}
		in, err := Exchange(c, out)
		if err != nil {
			return err
		}
		src := (c.Rank() + NP - 1) % NP
		assert.Len(t, in, 1)
		assert.Equal(t, []int{src, src * 10}, in[src])
		return nil
	})
	require.NoError(t, err)
}

func TestAbortReleasesPeers(t *testing.T) {
	boom := errors.New("boom")
	err := Run(3, func(c *Comm) error {
		if c.Rank() == 1 {
			return boom
		}
		// Would block forever without the abort
		return c.Barrier()
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
}

func TestMismatchedCollective(t *testing.T) {
	err := Run(2, func(c *Comm) error {
		if c.Rank() == 0 {
			_, err := AllGather(c, 1)
			return err
		}
		_, err := AllGather(c, "one")
		return err
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMismatch)
}

func TestRunRejectsNoRanks(t *testing.T) {
	assert.Error(t, Run(0, func(c *Comm) error { return nil }))
}
