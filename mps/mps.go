// Package mps implements Matrix Product State containers and the
// cached environments needed by sweeping algorithms.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math"
	"math/cmplx"
	"math/rand/v2"
	"slices"

	"github.com/fumin/tensor"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6, Ulrich Schollwock.
	mpsLeftAxis  = 0
	mpsUpAxis    = 1
	mpsRightAxis = 2
	// mpoLeftAxis is the axis of b_{l-1} in Figure 35, Ulrich Schollwock.
	mpoLeftAxis  = 0
	mpoRightAxis = 1
	mpoUpAxis    = 2
	mpoDownAxis  = 3

	// Machine precision.
	epsilon = 0x1p-23
)

// NewMPS create a matrix product representation from a general state.
func NewMPS(state *tensor.Dense, bufs [2]*tensor.Dense) []*tensor.Dense {
	shape := state.Shape()

	sites := make([]*tensor.Dense, 0, len(shape))
	var leftD int = 1
	for _, physD := range shape[:len(shape)-1] {
		q := tensor.Zeros(1)
		r := tensor.QR(q, state.Reshape(leftD*physD, -1), bufs)

		leftD = r.Shape()[0]
		state = r

		sites = append(sites, q.Reshape(-1, physD, leftD))
	}

	state = state.Reshape(leftD, shape[len(shape)-1], 1)
	sites = append(sites, resetCopy(tensor.Zeros(1), state))

	return sites
}

// RandMPS creates a random matrix product state.
// maxD is the maximum bond dimension, which is D in the discussion below equation 71 in section 4.1.4, Ulrich Schollwock.
func RandMPS(mpo []*tensor.Dense, maxD int) []*tensor.Dense {
	sites := make([]*tensor.Dense, 0, len(mpo))

	// First site.
	physD := mpo[0].Shape()[mpoDownAxis]
	leftD := physD
	sites = append(sites, randTensor(1, physD, min(physD, maxD)))

	for i := 1; i <= len(mpo)-2; i++ {
		physD := mpo[i].Shape()[mpoDownAxis]
		var rightD int
		switch {
		case i < len(mpo)/2:
			rightD = leftD * physD
		case i > len(mpo)/2:
			rightD = leftD / physD
		case len(mpo)%2 == 0:
			rightD = leftD / physD
		default:
			rightD = leftD
		}
		leftD = rightD

		si1 := sites[i-1].Shape()
		sites = append(sites, randTensor(si1[mpsRightAxis], physD, min(rightD, maxD)))
	}

	// Last site.
	physD = mpo[len(mpo)-1].Shape()[mpoDownAxis]
	si1 := sites[len(mpo)-2].Shape()
	sites = append(sites, randTensor(si1[mpsRightAxis], physD, 1))

	return sites
}

// Clone deep copies the site tensors of a matrix product state.
func Clone(ms []*tensor.Dense) []*tensor.Dense {
	cs := make([]*tensor.Dense, 0, len(ms))
	for _, m := range ms {
		cs = append(cs, resetCopy(tensor.Zeros(1), m))
	}
	return cs
}

// InnerProduct computes the inner product between x and y.
// See Section 4.2.1 Efficient evaluation of contractions, Ulrich Schollwock.
func InnerProduct(x, y []*tensor.Dense, bufs [2]*tensor.Dense) complex64 {
	if len(x) != len(y) {
		panic(fmt.Sprintf("%d %d", len(x), len(y)))
	}

	f := ones(bufs[0], 1, 1)
	const fTopAxis, fBottomAxis = 0, 1
	for i, xi := range x {
		yi := y[i]

		fyi := tensor.Product(bufs[1], f, yi, [][2]int{{fBottomAxis, mpsLeftAxis}})
		tensor.Product(f, xi.Conj(), fyi, [][2]int{{mpsLeftAxis, fTopAxis}, {mpsUpAxis, mpsUpAxis}})
	}

	if !slices.Equal(f.Shape(), []int{1, 1}) {
		panic(fmt.Sprintf("%#v", f.Shape()))
	}
	return f.At(0, 0)
}

// Norm returns the Frobenius norm of a tensor.
func Norm(a *tensor.Dense) float64 {
	var sum float64
	for _, v := range a.All() {
		re, im := float64(real(v)), float64(imag(v))
		sum += re*re + im*im
	}
	return math.Sqrt(sum)
}

// RightNormalizeAll brings a state to right-canonical form with the
// orthogonality center at site 0.
// See Section 4.4.2 Generation of a right-canonical MPS, Ulrich Schollwock.
func RightNormalizeAll(ms []*tensor.Dense, bufs [3]*tensor.Dense) {
	for i := len(ms) - 1; i >= 1; i-- {
		rightNormalize(ms, i, bufs[:])
	}
}

// rightNormalize normalizes a MPS site from the right, moving the
// orthogonality center from site i to site i-1.
func rightNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dUp, dRight := s[mpsUpAxis], s[mpsRightAxis]

	// Decompose ms[i] = l @ q.H.
	mi := ms[i].Reshape(s[mpsLeftAxis], dUp*dRight)
	q, lqbufs := bufs[0], [2]*tensor.Dense(bufs[1:])
	l := lq(q, mi, lqbufs)

	// ms[i-1] = ms[i-1] @ l.
	axes := [][2]int{{mpsRightAxis, 0}}
	resetCopy(ms[i-1], tensor.Product(bufs[1], ms[i-1], l, axes))

	// ms[i] = q.H.
	ms[i] = resetCopy(ms[i], q.H()).Reshape(-1, dUp, dRight)
}

// leftNormalize moves the orthogonality center from site i to site i+1.
func leftNormalize(ms []*tensor.Dense, i int, bufs []*tensor.Dense) {
	s := ms[i].Shape()
	dLeft, dUp := s[mpsLeftAxis], s[mpsUpAxis]

	// Decompose ms[i] = q @ r.
	mi := ms[i].Reshape(dLeft*dUp, s[mpsRightAxis])
	q, qrbufs := bufs[0], [2]*tensor.Dense(bufs[1:])
	r := tensor.QR(q, mi, qrbufs)

	// ms[i+1] = r @ ms[i+1].
	axes := [][2]int{{1, mpsLeftAxis}}
	resetCopy(ms[i+1], tensor.Product(bufs[1], r, ms[i+1], axes))

	// ms[i] = q.
	ms[i] = resetCopy(ms[i], q).Reshape(dLeft, dUp, -1)
}

func lq(q, a *tensor.Dense, bufs [2]*tensor.Dense) *tensor.Dense {
	r := tensor.QR(q, a.H(), bufs)
	return r.H()
}

func product(p *tensor.Dense, ms []*tensor.Dense, buf *tensor.Dense) *tensor.Dense {
	// mmi is the product of m0 @ m1 @ ... mi.
	var mmi *tensor.Dense

	// Do mmi = mmi @ mi.
	mmiPrev := buf
	resetCopy(mmiPrev, ms[0])
	for _, mi := range ms[1:] {
		if mmiPrev == buf {
			mmi = p
		} else {
			mmi = buf
		}
		axes := [][2]int{{len(mmiPrev.Shape()) - 1, 0}}
		tensor.Product(mmi, mmiPrev, mi, axes)

		mmiPrev = mmi
	}

	if mmi == buf {
		resetCopy(p, mmi)
	}
	return p
}

func resetCopy(dst, src *tensor.Dense) *tensor.Dense {
	shape := src.Shape()
	zeroDigit := make([]int, len(shape))
	dst.Reset(shape...).Set(zeroDigit, src)
	return dst
}

func ones(t *tensor.Dense, shape ...int) *tensor.Dense {
	t.Reset(shape...)
	for ijk := range t.All() {
		t.SetAt(ijk, 1)
	}
	return t
}

func abs(x complex64) float32 {
	return float32(cmplx.Abs(complex128(x)))
}

func randTensor(shape ...int) *tensor.Dense {
	t := tensor.Zeros(shape...)
	for ijk := range t.All() {
		v := complex(rand.Float32()*2-1, rand.Float32()*2-1)
		t.SetAt(ijk, v)
	}
	return t
}
