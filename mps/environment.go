package mps

import (
	"fmt"
	"math"

	"github.com/fumin/tensor"
)

// Environment caches the left and right contractions of the three-layer
// network <Psi|H|Psi> around a window of one or two sites.
// It owns the state tensors Ms, which sweeping algorithms mutate in
// place; Advance must be called before reading a projected Hamiltonian,
// and advancing invalidates any previously returned view.
// An Environment must not be shared between concurrent sweeps.
type Environment struct {
	Ws []*tensor.Dense
	Ms []*tensor.Dense

	// Scale is the global scalar prefactor of the represented state.
	// The site tensors themselves are kept normalized, so that the
	// physical state is Scale times the state of Ms.
	Scale complex128
	// Center is the current orthogonality center.
	Center int

	// ls[i] contracts sites [0, i], rs[i] contracts sites [i, L-1].
	// ls[:nl] is valid, and so is rs[len(rs)-nr:].
	ls, rs []*tensor.Dense
	nl, nr int

	lend, rend *tensor.Dense
	bufs       [4]*tensor.Dense
}

// NewEnvironment builds the cached environment of <Psi|H|Psi>.
// It takes ownership of ms, bringing it to right-canonical form and
// normalizing it, with the norm folded into Scale.
func NewEnvironment(ws, ms []*tensor.Dense) *Environment {
	if len(ws) != len(ms) {
		panic(fmt.Sprintf("%d %d", len(ws), len(ms)))
	}
	e := &Environment{Ws: ws, Ms: ms, Scale: 1}
	for i := range e.bufs {
		e.bufs[i] = tensor.Zeros(1)
	}
	e.ls = make([]*tensor.Dense, len(ms))
	e.rs = make([]*tensor.Dense, len(ms))
	for i := range ms {
		e.ls[i] = tensor.Zeros(1)
		e.rs[i] = tensor.Zeros(1)
	}
	e.lend = ones(tensor.Zeros(1), 1, 1, 1)
	e.rend = ones(tensor.Zeros(1), 1, 1, 1)

	RightNormalizeAll(ms, [3]*tensor.Dense(e.bufs[:3]))
	e.Center = 0
	ip := InnerProduct(ms, ms, [2]*tensor.Dense(e.bufs[:2]))
	nrm := float32(math.Sqrt(float64(abs(ip))))
	if nrm < epsilon {
		panic(fmt.Sprintf("%f", ip))
	}
	ms[0].Mul(complex(1/nrm, 0))
	e.Scale = complex(float64(nrm), 0)

	return e
}

// Advance moves the cached contraction to the window [i, j].
// Contractions are recomputed lazily from the current state tensors;
// cached entries inside the window are dropped, so that they are
// rebuilt after the caller mutates the windowed sites.
func (e *Environment) Advance(i, j int) {
	l := len(e.Ms)
	if i < 0 || j < i || j >= l {
		panic(fmt.Sprintf("%d %d %d", i, j, l))
	}

	if e.nl > i {
		e.nl = i
	}
	for e.nl < i {
		k := e.nl
		left := e.lend
		if k > 0 {
			left = e.ls[k-1]
		}
		lExpression(e.ls[k], left, e.Ws[k], e.Ms[k], e.bufs[:2])
		e.nl++
	}

	if e.nr > l-1-j {
		e.nr = l - 1 - j
	}
	for e.nr < l-1-j {
		k := l - 1 - e.nr
		right := e.rend
		if k < l-1 {
			right = e.rs[k+1]
		}
		rExpression(e.rs[k], right, e.Ws[k], e.Ms[k], e.bufs[:2])
		e.nr++
	}
}

// Heff2 returns the action of the projected Hamiltonian on the two-site
// window (i, i+1), shifted by -shift.
// The argument of the action is of shape {mpsLeft, up_i, up_i+1, mpsRight}.
// The view is valid until the next call to Advance.
func (e *Environment) Heff2(i int, shift complex64) func(y, x *tensor.Dense) {
	l := len(e.Ms)
	if e.nl < i || e.nr < l-i-2 {
		panic(fmt.Sprintf("%d %d %d", i, e.nl, e.nr))
	}
	left := e.lend
	if i > 0 {
		left = e.ls[i-1]
	}
	right := e.rend
	if i+2 < l {
		right = e.rs[i+2]
	}
	w1, w2 := e.Ws[i], e.Ws[i+1]

	return func(y, x *tensor.Dense) {
		// left is of shape {fTop, fMid, fBot}.
		// fm is of shape {fTop, fMid, up1, up2, mpsRight}.
		fm := tensor.Product(e.bufs[2], left, x, [][2]int{{2, mpsLeftAxis}})

		// wfm is of shape {mpoRight, mpoUp, fTop, up2, mpsRight}.
		wfm := tensor.Product(e.bufs[3], w1, fm, [][2]int{{mpoDownAxis, 2}, {mpoLeftAxis, 1}})

		// wwfm is of shape {mpoRight2, mpoUp2, mpoUp, fTop, mpsRight}.
		wwfm := tensor.Product(e.bufs[2], w2, wfm, [][2]int{{mpoDownAxis, 3}, {mpoLeftAxis, 0}})

		// right is of shape {rTop, rMid, rBot}.
		// hx is of shape {mpoUp2, mpoUp, fTop, rTop}.
		hx := tensor.Product(e.bufs[3], wwfm, right, [][2]int{{0, 1}, {4, 2}})

		// y is of shape {fTop, mpoUp, mpoUp2, rTop}.
		resetCopy(y, hx.Transpose(2, 1, 0, 3))
		if shift != 0 {
			for ijk, v := range y.All() {
				y.SetAt(ijk, v-shift*x.At(ijk...))
			}
		}
	}
}

// Heff1 returns the action of the projected Hamiltonian on the one-site
// window at i, shifted by -shift.
func (e *Environment) Heff1(i int, shift complex64) func(y, x *tensor.Dense) {
	l := len(e.Ms)
	if e.nl < i || e.nr < l-i-1 {
		panic(fmt.Sprintf("%d %d %d", i, e.nl, e.nr))
	}
	left := e.lend
	if i > 0 {
		left = e.ls[i-1]
	}
	right := e.rend
	if i+1 < l {
		right = e.rs[i+1]
	}
	w := e.Ws[i]

	return func(y, x *tensor.Dense) {
		// fm is of shape {fTop, fMid, up, mpsRight}.
		fm := tensor.Product(e.bufs[2], left, x, [][2]int{{2, mpsLeftAxis}})

		// wfm is of shape {mpoRight, mpoUp, fTop, mpsRight}.
		wfm := tensor.Product(e.bufs[3], w, fm, [][2]int{{mpoDownAxis, 2}, {mpoLeftAxis, 1}})

		// hx is of shape {mpoUp, fTop, rTop}.
		hx := tensor.Product(e.bufs[2], wfm, right, [][2]int{{0, 1}, {3, 2}})

		// y is of shape {fTop, mpoUp, rTop}.
		resetCopy(y, hx.Transpose(1, 0, 2))
		if shift != 0 {
			for ijk, v := range y.All() {
				y.SetAt(ijk, v-shift*x.At(ijk...))
			}
		}
	}
}

// Expectation returns <Psi|H|Psi>/<Psi|Psi> of the current state.
func (e *Environment) Expectation() complex64 {
	f := ones(tensor.Zeros(1), 1, 1, 1)
	g := tensor.Zeros(1)
	for i, w := range e.Ws {
		lExpression(g, f, w, e.Ms[i], e.bufs[2:4])
		f, g = g, f
	}
	h := f.At(0, 0, 0)

	ip := InnerProduct(e.Ms, e.Ms, [2]*tensor.Dense(e.bufs[:2]))
	if abs(ip) < epsilon {
		panic(fmt.Sprintf("%f", ip))
	}
	return h / ip
}

// MoveCenter brings the orthogonality center to site c.
func (e *Environment) MoveCenter(c int) {
	l := len(e.Ms)
	if c < 0 || c >= l {
		panic(fmt.Sprintf("%d %d", c, l))
	}
	for e.Center > c {
		i := e.Center
		rightNormalize(e.Ms, i, e.bufs[:3])
		e.Center--
		e.nl = min(e.nl, i-1)
		e.nr = min(e.nr, l-1-i)
	}
	for e.Center < c {
		i := e.Center
		leftNormalize(e.Ms, i, e.bufs[:3])
		e.Center++
		e.nl = min(e.nl, i)
		e.nr = min(e.nr, l-i-2)
	}
}

// lExpression extends a left contraction by one site.
// It is the recurrence of Equation 192, Section 6.2 Applying a
// Hamiltonian MPO to a mixed canonical state, Ulrich Schollwock.
func lExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fi1 is of shape {fTop, fMid, fBot}.
	// fm is of shape {fTop, fMid, mpsTop, mpsRight}.
	fm := tensor.Product(bufs[0], fi1, m, [][2]int{{2, mpsLeftAxis}})

	// wfm is of shape {mpoRight, mpoUp, fTop, mpsRight}.
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpoDownAxis, 2}, {mpoLeftAxis, 1}})

	// fi is of shape {mpsRight.conj, mpoRight, mpsRight}.
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsLeftAxis, 2}, {mpsUpAxis, 1}})

	return fi
}

// rExpression extends a right contraction by one site.
// It is the recurrence of Equation 193, Section 6.2, Ulrich Schollwock.
func rExpression(fi, fi1, w, m *tensor.Dense, bufs []*tensor.Dense) *tensor.Dense {
	// fi1 is of shape {fTop, fMid, fBot}.
	// fm is of shape {fTop, fMid, mpsLeft, mpsTop}.
	fm := tensor.Product(bufs[0], fi1, m, [][2]int{{2, mpsRightAxis}})

	// wfm is of shape {mpoLeft, mpoUp, fTop, mpsLeft}.
	wfm := tensor.Product(bufs[1], w, fm, [][2]int{{mpoDownAxis, 3}, {mpoRightAxis, 1}})

	// fi is of shape {mpsLeft.conj, mpoLeft, mpsLeft}.
	tensor.Product(fi, m.Conj(), wfm, [][2]int{{mpsRightAxis, 2}, {mpsUpAxis, 1}})

	return fi
}
