// Package tdvp implements the two-site time dependent variational
// principle for matrix product states.
// For details, see Jutho Haegeman, Christian Lubich, Ivan Oseledets,
// Bart Vandereycken, and Frank Verstraete, Unifying time evolution and
// optimization with matrix product states, Phys. Rev. B 94, 165116
// (2016).
package tdvp

import (
	"fmt"
	"log"
	"math"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"

	"github.com/fumin/tdvp/krylov"
	"github.com/fumin/tdvp/mps"
)

// Direction is the direction of a sweep.
type Direction int

// Sweep directions.
const (
	L Direction = iota
	R
)

func (d Direction) String() string {
	switch d {
	case L:
		return "L"
	case R:
		return "R"
	}
	return fmt.Sprintf("Direction(%d)", int(d))
}

// Integrator computes exp(t*A)*x for a linear map given by its action.
type Integrator func(action func(y, x *tensor.Dense), t complex64, x *tensor.Dense, options ...krylov.Options) (*tensor.Dense, krylov.Info, error)

// SweepOptions are the options for Sweep and SweepOneDirection.
type SweepOptions struct {
	trunc       mps.Truncation
	krylov      krylov.Options
	integrator  Integrator
	maxRestarts int
	verbose     int
}

// NewSweepOptions returns the default options for sweeping.
func NewSweepOptions() SweepOptions {
	opt := SweepOptions{}
	opt.trunc = mps.Truncation{Cutoff: 1e-12}
	opt.krylov = krylov.NewOptions()
	opt.integrator = krylov.ExpMV
	opt.maxRestarts = 32
	return opt
}

// Truncation sets the bond truncation applied after each two-site update.
func (opt SweepOptions) Truncation(tr mps.Truncation) SweepOptions {
	opt.trunc = tr
	return opt
}

// Krylov sets the options of the local integrator.
func (opt SweepOptions) Krylov(ko krylov.Options) SweepOptions {
	opt.krylov = ko
	return opt
}

// Integrator sets the local integrator, by default krylov.ExpMV.
func (opt SweepOptions) Integrator(ig Integrator) SweepOptions {
	opt.integrator = ig
	return opt
}

// MaxRestarts sets the maximum number of partial steps a local update
// may be split into.
func (opt SweepOptions) MaxRestarts(m int) SweepOptions {
	opt.maxRestarts = m
	return opt
}

// Verbose sets the diagnostic logging level.
// Level 1 logs the two-site updates, level 2 also the backward
// corrections.
func (opt SweepOptions) Verbose(v int) SweepOptions {
	opt.verbose = v
	return opt
}

// BondInfo reports the diagnostics of a single local update.
type BondInfo struct {
	// Site is the left site of a two-site update, or the site of a
	// backward one-site update.
	Site int
	// Dt is the time integrated by this update.
	Dt complex64
	// Iterations and Matvecs are summed over partial steps.
	Iterations int
	Matvecs    int
	Converged  bool
	// Norm is the norm of the updated block before renormalization.
	Norm float64
	// BondDim is the bond dimension kept after truncation.
	BondDim int
	// TruncErr is the relative discarded weight of the truncation.
	TruncErr float64
	// Energy is the energy shift in effect during the update.
	Energy complex64
}

// Sweep evolves the state by dt using a symmetric second order sweep,
// integrating dt/2 left to right and dt/2 in the returning right to
// left pass.
// It returns the diagnostics of the two-site and the one-site updates.
func Sweep(env *mps.Environment, dt complex64, options ...SweepOptions) ([]BondInfo, []BondInfo, error) {
	opt := NewSweepOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	half := dt / 2
	fwd0, bwd0, err := SweepOneDirection(env, half, L, opt)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	fwd1, bwd1, err := SweepOneDirection(env, half, R, opt)
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return append(fwd0, fwd1...), append(bwd0, bwd1...), nil
}

// SweepOneDirection evolves the state by dt with a single sweep in the
// given direction.
// Each bond is updated by exponentiating the projected two-site
// Hamiltonian, followed by a backward one-site correction, except after
// the last bond.
// The projected Hamiltonians are shifted by the current energy, which
// keeps the local exponentials well conditioned; the shifted away
// phases are folded into env.Scale.
func SweepOneDirection(env *mps.Environment, dt complex64, dir Direction, options ...SweepOptions) ([]BondInfo, []BondInfo, error) {
	opt := NewSweepOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if opt.integrator == nil {
		opt.integrator = krylov.ExpMV
	}
	if opt.maxRestarts <= 0 {
		opt.maxRestarts = 32
	}
	l := len(env.Ms)
	if l < 2 {
		return nil, nil, errors.Errorf("%d sites", l)
	}

	e0 := env.Expectation()
	var bonds []int
	switch dir {
	case L:
		env.MoveCenter(0)
		for i := 0; i < l-1; i++ {
			bonds = append(bonds, i)
		}
	case R:
		env.MoveCenter(l - 1)
		for i := l - 2; i >= 0; i-- {
			bonds = append(bonds, i)
		}
	default:
		panic(fmt.Sprintf("%d", int(dir)))
	}

	var fwd, bwd []BondInfo
	buf := tensor.Zeros(1)
	for bi, i := range bonds {
		env.Advance(i, i+1)
		merged := tensor.Product(buf, env.Ms[i], env.Ms[i+1], [][2]int{{2, 0}})

		evolved, finfo, err := SolveLocal(env.Heff2(i, e0), dt, merged, opt)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("bond %d", i))
		}

		shape := evolved.Shape()
		dl, d1, d2, dr := shape[0], shape[1], shape[2], shape[3]
		u, s, v, discarded := mps.SVD(evolved.Reshape(dl*d1, d2*dr), opt.trunc)
		k := len(s)

		var c int
		switch dir {
		case L:
			env.Ms[i] = u.Reshape(dl, d1, k)
			vh := resetCopy(tensor.Zeros(1), v.H())
			center := mulDiag(vh, s, true).Reshape(k, d2, dr)
			normalizeCenter(center)
			env.Ms[i+1] = center
			c = i + 1
		case R:
			env.Ms[i+1] = resetCopy(tensor.Zeros(1), v.H()).Reshape(k, d2, dr)
			center := mulDiag(u, s, false).Reshape(dl, d1, k)
			normalizeCenter(center)
			env.Ms[i] = center
			c = i
		}
		env.Center = c
		env.Scale *= complex(finfo.Norm, 0) * cmplx.Exp(complex128(dt)*complex128(e0))
		fwd = append(fwd, BondInfo{
			Site: i, Dt: dt,
			Iterations: finfo.Iterations, Matvecs: finfo.Matvecs,
			Converged: finfo.Converged, Norm: finfo.Norm,
			BondDim: k, TruncErr: discarded, Energy: e0,
		})
		if opt.verbose >= 1 {
			log.Printf("bond %d dir %s dim %d trunc %.3g energy %f", i, dir, k, discarded, e0)
		}

		if bi == len(bonds)-1 {
			break
		}

		// Backward one-site correction.
		env.Advance(c, c)
		back, binfo, err := SolveLocal(env.Heff1(c, e0), -dt, env.Ms[c], opt)
		if err != nil {
			return nil, nil, errors.Wrap(err, fmt.Sprintf("site %d", c))
		}
		env.Ms[c] = back
		env.Scale *= complex(binfo.Norm, 0) * cmplx.Exp(complex(float64(-real(dt)), 0)*complex128(e0))
		bwd = append(bwd, BondInfo{
			Site: c, Dt: -dt,
			Iterations: binfo.Iterations, Matvecs: binfo.Matvecs,
			Converged: binfo.Converged, Norm: binfo.Norm,
			BondDim: k, Energy: e0,
		})
		e0 -= complex64(complex(math.Log(binfo.Norm), 0) / complex128(dt))
		if opt.verbose >= 2 {
			log.Printf("site %d dir %s norm %g energy %f", c, dir, binfo.Norm, e0)
		}
	}
	return fwd, bwd, nil
}

// mulDiag multiplies a matrix by a diagonal.
// When left is true it computes diag(s)*a, otherwise a*diag(s).
func mulDiag(a *tensor.Dense, s []float64, left bool) *tensor.Dense {
	for ij, v := range a.All() {
		var d float64
		if left {
			d = s[ij[0]]
		} else {
			d = s[ij[1]]
		}
		a.SetAt(ij, v*complex(float32(d), 0))
	}
	return a
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	dst.Reset(src.Shape()...)
	dst.Set(make([]int, len(src.Shape())), src)
	return dst
}

func normalizeCenter(c *tensor.Dense) {
	n := mps.Norm(c)
	if n < 1e-30 {
		panic(fmt.Sprintf("%g", n))
	}
	c.Mul(complex(float32(1/n), 0))
}
