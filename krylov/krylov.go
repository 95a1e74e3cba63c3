// Package krylov approximates the action of matrix exponentials on
// vectors using Arnoldi iterations.
// The stepping strategy follows Roger B. Sidje, Expokit: a software
// package for computing matrix exponentials, ACM Trans. Math. Softw. 24
// (1998).
package krylov

import (
	"math"
	"math/cmplx"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
	gmat "gonum.org/v1/gonum/mat"
)

// Options are the options for ExpMV.
type Options struct {
	maxDim int
	tol    float64
}

// NewOptions returns the default options for ExpMV.
// The tolerance reflects the single precision of the underlying
// tensors.
func NewOptions() Options {
	opt := Options{}
	opt.maxDim = 30
	opt.tol = 1e-8
	return opt
}

// MaxDim sets the maximum dimension of the Krylov subspace.
func (opt Options) MaxDim(m int) Options {
	opt.maxDim = m
	return opt
}

// Tol sets the tolerance of the a posteriori error estimate.
func (opt Options) Tol(tol float64) Options {
	opt.tol = tol
	return opt
}

// Info reports the convergence of a single ExpMV call.
type Info struct {
	// Converged is true when the full requested time was integrated.
	Converged bool
	// Residual is the portion of the requested time not integrated.
	// It is exactly zero when Converged is true.
	Residual complex64
	// Iterations is the dimension of the Krylov subspace used.
	Iterations int
	// Matvecs is the number of times action was applied.
	Matvecs int
	// Err is the a posteriori error estimate of the accepted step.
	Err float64
}

// ExpMV computes exp(t*A)*x, where the linear map A is given by its
// action y = A(x).
// When the a posteriori error estimate exceeds the tolerance, ExpMV
// integrates only a fraction of t, reporting the unintegrated rest in
// Info.Residual.
// The argument x is not modified.
func ExpMV(action func(y, x *tensor.Dense), t complex64, x *tensor.Dense, options ...Options) (*tensor.Dense, Info, error) {
	opt := NewOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if opt.maxDim <= 0 {
		opt.maxDim = 30
	}
	if opt.tol <= 0 {
		opt.tol = 1e-8
	}

	beta := norm(x)
	if t == 0 || beta == 0 {
		y := resetCopy(tensor.Zeros(1), x)
		return y, Info{Converged: true}, nil
	}

	// Arnoldi with modified Gram-Schmidt.
	m := opt.maxDim
	vs := make([]*tensor.Dense, 0, m+1)
	v0 := resetCopy(tensor.Zeros(1), x)
	v0.Mul(complex64(complex(1/beta, 0)))
	vs = append(vs, v0)
	h := make([][]complex128, m+1)
	for i := range h {
		h[i] = make([]complex128, m)
	}
	info := Info{}
	used := 0
	happy := false
	w := tensor.Zeros(1)
	for j := 0; j < m; j++ {
		action(w, vs[j])
		info.Matvecs++
		for i := 0; i <= j; i++ {
			hij := dot(vs[i], w)
			h[i][j] = hij
			axpy(w, -hij, vs[i])
		}
		wn := norm(w)
		h[j+1][j] = complex(wn, 0)
		used = j + 1
		if wn < 1e-14*beta {
			happy = true
			break
		}
		vj := resetCopy(tensor.Zeros(1), w)
		vj.Mul(complex64(complex(1/wn, 0)))
		vs = append(vs, vj)
	}
	info.Iterations = used

	// Halve the step until the error estimate is acceptable.
	tt := complex128(t)
	frac := 1.0
	var y []complex128
	for {
		y = expe1(h, used, tt*complex(frac, 0))
		if happy {
			break
		}
		errEst := cmplx.Abs(tt*complex(frac, 0)) * cmplx.Abs(h[used][used-1]) * cmplx.Abs(y[used-1])
		if errEst <= opt.tol {
			info.Err = errEst
			break
		}
		if frac <= 1.0/1024 {
			return nil, info, errors.Errorf("no acceptable step, error estimate %g", errEst)
		}
		frac /= 2
	}
	if frac == 1 {
		info.Converged = true
	} else {
		info.Residual = t - complex64(tt*complex(frac, 0))
	}

	out := resetCopy(tensor.Zeros(1), vs[0])
	out.Mul(complex64(complex(beta, 0) * y[0]))
	for i := 1; i < used; i++ {
		axpy(out, complex(beta, 0)*y[i], vs[i])
	}
	return out, info, nil
}

// expe1 computes the first column of exp(z*H), where H is the leading
// m by m block of h.
// The complex matrix is realified to a 2m by 2m real one through the
// ring isomorphism a+bi -> [[a, -b], [b, a]], which commutes with exp.
func expe1(h [][]complex128, m int, z complex128) []complex128 {
	am := gmat.NewDense(2*m, 2*m, nil)
	for i := range m {
		for j := range m {
			v := z * h[i][j]
			am.Set(i, j, real(v))
			am.Set(i, m+j, -imag(v))
			am.Set(m+i, j, imag(v))
			am.Set(m+i, m+j, real(v))
		}
	}
	var em gmat.Dense
	em.Exp(am)
	y := make([]complex128, m)
	for i := range m {
		y[i] = complex(em.At(i, 0), em.At(m+i, 0))
	}
	return y
}

func norm(x *tensor.Dense) float64 {
	var ss float64
	for _, v := range x.All() {
		re, im := float64(real(v)), float64(imag(v))
		ss += re*re + im*im
	}
	return math.Sqrt(ss)
}

// dot returns <x, y> with x conjugated.
func dot(x, y *tensor.Dense) complex128 {
	var s complex128
	for ix, v := range x.All() {
		s += cmplx.Conj(complex128(v)) * complex128(y.At(ix...))
	}
	return s
}

// axpy computes y += a*x.
func axpy(y *tensor.Dense, a complex128, x *tensor.Dense) {
	a64 := complex64(a)
	for ix, v := range y.All() {
		y.SetAt(ix, v+a64*x.At(ix...))
	}
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	dst.Reset(src.Shape()...)
	dst.Set(make([]int, len(src.Shape())), src)
	return dst
}
