package main

import (
	"math/big"

	"rvkernel/jobs"
	"rvkernel/task"
)

// millerRabinFuture is a deterministic 64-bit Miller-Rabin primality
// check, ported from Guti2010-Proyecto-SO's mrIsPrime64Ctx, but split
// into one witness per Poll call instead of one ctx.Done() check every
// other witness: each pending return clones and wakes its own waker,
// so the task reschedules itself and the scheduler observes real
// cooperative yielding (spec.md's worker never blocks inside a single
// Poll waiting on this task to finish).
type millerRabinFuture struct {
	n uint64

	decided   bool
	isPrime   bool
	r         int
	nBI, dBI  *big.Int
	baseIndex int
}

var mrSmallPrimes = [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}
var mrBases = [...]uint64{2, 3, 5, 7, 11, 13, 17, 19, 23, 29, 31, 37}

func newMillerRabinFuture(n uint64) *millerRabinFuture {
	return &millerRabinFuture{n: n}
}

func (f *millerRabinFuture) Poll(cx *task.Context) (jobs.Result, bool) {
	if f.decided {
		return jobs.Result{Value: f.isPrime}, true
	}

	if f.nBI == nil {
		// First poll: handle the trivial cases and the small-prime
		// sieve synchronously, then set up the decomposition used by
		// every subsequent witness round.
		if f.n < 2 {
			return f.finish(false)
		}
		for _, p := range mrSmallPrimes {
			if f.n == p {
				return f.finish(true)
			}
			if f.n%p == 0 {
				return f.finish(false)
			}
		}

		d := f.n - 1
		r := 0
		for d&1 == 0 {
			d >>= 1
			r++
		}
		f.r = r
		f.nBI = new(big.Int).SetUint64(f.n)
		f.dBI = new(big.Int).SetUint64(d)
	}

	if f.baseIndex >= len(mrBases) {
		return f.finish(true)
	}

	a := mrBases[f.baseIndex]
	f.baseIndex++
	if a%f.n != 0 && f.witnessComposite(a) {
		return f.finish(false)
	}

	cx.Waker().Clone().Wake()
	return jobs.Result{}, false
}

// witnessComposite reports whether a is a Miller-Rabin witness to n
// being composite, replaying the teacher's loop-squaring check.
func (f *millerRabinFuture) witnessComposite(a uint64) bool {
	nMinus1 := new(big.Int).Sub(f.nBI, big.NewInt(1))
	x := new(big.Int).Exp(new(big.Int).SetUint64(a), f.dBI, f.nBI)
	if x.Sign() == 0 || x.Cmp(big.NewInt(1)) == 0 || x.Cmp(nMinus1) == 0 {
		return false
	}

	for i := 0; i < f.r-1; i++ {
		x.Exp(x, big.NewInt(2), f.nBI)
		if x.Cmp(nMinus1) == 0 {
			return false
		}
	}
	return true
}

func (f *millerRabinFuture) finish(prime bool) (jobs.Result, bool) {
	f.decided = true
	f.isPrime = prime
	return jobs.Result{Value: prime}, true
}
