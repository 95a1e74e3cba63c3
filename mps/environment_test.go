package mps

import (
	"testing"

	"github.com/fumin/tensor"
)

func TestHeff2(t *testing.T) {
	t.Parallel()
	// On a two site chain, the projected two site Hamiltonian is the
	// full Hamiltonian.
	const l = 2
	const h = complex64(0.5)
	ws, err := Ising(l, h).MPO(l)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	env := NewEnvironment(ws, RandMPS(ws, 2))
	env.Advance(0, 1)

	ham := denseIsing(l, h)
	x := randTensor(1, 2, 2, 1)
	vec := flatten(x)

	y := tensor.Zeros(1)
	env.Heff2(0, 0)(y, x)
	got := flatten(y)
	for i := range got {
		var want complex64
		for j := range vec {
			want += ham[i][j] * vec[j]
		}
		if abs(got[i]-want) > 1e-4 {
			t.Fatalf("%d %f %f", i, got[i], want)
		}
	}

	// A shift subtracts a multiple of the identity.
	shift := complex64(0.3)
	env.Heff2(0, shift)(y, x)
	got = flatten(y)
	for i := range got {
		var want complex64
		for j := range vec {
			want += ham[i][j] * vec[j]
		}
		want -= shift * vec[i]
		if abs(got[i]-want) > 1e-4 {
			t.Fatalf("%d %f %f", i, got[i], want)
		}
	}
}

func TestHeff1(t *testing.T) {
	t.Parallel()
	// On a one site chain, the projected one site Hamiltonian is the
	// full Hamiltonian, here -h X.
	const h = complex64(0.7)
	ws, err := Ising(1, h).MPO(1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	m := randTensor(1, 2, 1)
	env := NewEnvironment(ws, []*tensor.Dense{m})
	env.Advance(0, 0)

	x := randTensor(1, 2, 1)
	y := tensor.Zeros(1)
	env.Heff1(0, 0)(y, x)

	want0 := -h * x.At(0, 1, 0)
	want1 := -h * x.At(0, 0, 0)
	if abs(y.At(0, 0, 0)-want0) > 1e-5 || abs(y.At(0, 1, 0)-want1) > 1e-5 {
		t.Fatalf("%f %f %f %f", y.At(0, 0, 0), want0, y.At(0, 1, 0), want1)
	}
}

func TestExpectation(t *testing.T) {
	t.Parallel()
	const l = 4
	const h = complex64(1.3)
	ws, err := Ising(l, h).MPO(l)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	state := randTensor(2, 2, 2, 2)
	vec := flatten(state)
	env := NewEnvironment(ws, NewMPS(state, bufs))

	got := env.Expectation()
	want := quadraticForm(denseIsing(l, h), vec)
	if abs(got-want) > 1e-4 {
		t.Fatalf("%f %f", got, want)
	}
}

func TestMoveCenter(t *testing.T) {
	t.Parallel()
	const l = 4
	const h = complex64(0.9)
	ws, err := Ising(l, h).MPO(l)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	env := NewEnvironment(ws, RandMPS(ws, 4))
	e0 := env.Expectation()

	for _, c := range []int{3, 1, 2, 0} {
		env.MoveCenter(c)
		if env.Center != c {
			t.Fatalf("%d %d", env.Center, c)
		}
		if got := env.Expectation(); abs(got-e0) > 1e-4 {
			t.Fatalf("center %d, %f %f", c, got, e0)
		}
	}
}

func TestAdvanceRecompute(t *testing.T) {
	t.Parallel()
	// Advancing after a site mutation refreshes the contractions that
	// involve the mutated site.
	const l = 3
	const h = complex64(0.8)
	ws, err := Ising(l, h).MPO(l)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	env := NewEnvironment(ws, RandMPS(ws, 2))
	env.Advance(0, 1)

	// Replace the windowed sites and advance to the next window.
	env.Ms[0] = randTensor(1, 2, 2)
	env.Ms[1] = randTensor(2, 2, 2)
	env.Advance(1, 2)

	x := tensor.Product(tensor.Zeros(1), env.Ms[1], env.Ms[2], [][2]int{{2, 0}})
	y := tensor.Zeros(1)
	env.Heff2(1, 0)(y, x)

	// The closed window <x|Heff2|x> is the unnormalized <psi|H|psi>.
	var got complex64
	for ijk, v := range y.All() {
		xc := x.At(ijk...)
		got += complex(real(xc), -imag(xc)) * v
	}
	var bufs [2]*tensor.Dense
	for i := range bufs {
		bufs[i] = tensor.Zeros(1)
	}
	want := env.Expectation() * InnerProduct(env.Ms, env.Ms, bufs)
	if abs(got-want) > 1e-3*(1+abs(want)) {
		t.Fatalf("%f %f", got, want)
	}
}
