package krylov

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
	"testing"

	"github.com/fumin/tensor"
)

func TestExpMVDiagonal(t *testing.T) {
	t.Parallel()
	diag := []complex64{0.3, -1.2, 0.5i, -0.7 - 0.2i}
	action := func(y, x *tensor.Dense) {
		y.Reset(len(diag))
		for i, d := range diag {
			y.SetAt([]int{i}, d*x.At(i))
		}
	}
	x := tensor.Zeros(len(diag))
	for i := range diag {
		x.SetAt([]int{i}, complex(float32(i)+1, -0.5))
	}

	tstep := complex64(0.8 - 0.3i)
	y := expFull(t, action, tstep, x)
	for i, d := range diag {
		want := complex64(cmplx.Exp(complex128(tstep)*complex128(d))) * x.At(i)
		if cabs(y.At(i)-want) > 1e-5 {
			t.Fatalf("%d %f %f", i, y.At(i), want)
		}
	}
}

// expFull drives ExpMV over its partial steps until the requested time
// is fully integrated.
func expFull(t *testing.T, action func(y, x *tensor.Dense), tstep complex64, x *tensor.Dense) *tensor.Dense {
	cur := x
	remaining := tstep
	for i := 0; ; i++ {
		y, info, err := ExpMV(action, remaining, cur)
		if err != nil {
			t.Fatalf("%+v", err)
		}
		cur = y
		if info.Residual == 0 {
			if !info.Converged {
				t.Fatalf("%#v", info)
			}
			return cur
		}
		remaining = info.Residual
		if i > 10000 {
			t.Fatalf("%f", remaining)
		}
	}
}

func TestExpMVHermitian(t *testing.T) {
	t.Parallel()
	const dim = 6
	rnd := rand.New(rand.NewPCG(11, 13))
	a := make([][]complex128, dim)
	for i := range a {
		a[i] = make([]complex128, dim)
	}
	for i := 0; i < dim; i++ {
		a[i][i] = complex(rnd.Float64()*2-1, 0)
		for j := i + 1; j < dim; j++ {
			v := complex(rnd.Float64()*2-1, rnd.Float64()*2-1)
			a[i][j] = v
			a[j][i] = cmplx.Conj(v)
		}
	}
	action := func(y, x *tensor.Dense) {
		y.Reset(dim)
		for i := range a {
			var s complex128
			for j := range a[i] {
				s += a[i][j] * complex128(x.At(j))
			}
			y.SetAt([]int{i}, complex64(s))
		}
	}

	x := tensor.Zeros(dim)
	for i := 0; i < dim; i++ {
		x.SetAt([]int{i}, complex(rnd.Float32()*2-1, rnd.Float32()*2-1))
	}

	for _, tstep := range []complex64{0.3, -0.25, 0.2i, -0.1 - 0.2i} {
		y := expFull(t, action, tstep, x)
		want := taylorExp(a, complex128(tstep), x)
		for i := range want {
			if cabs(y.At(i)-complex64(want[i])) > 1e-4 {
				t.Fatalf("t %f, %d, %f %f", tstep, i, y.At(i), want[i])
			}
		}
	}
}

func TestExpMVZeroStep(t *testing.T) {
	t.Parallel()
	action := func(y, x *tensor.Dense) {
		resetCopy(y, x)
	}
	x := tensor.Zeros(3)
	x.SetAt([]int{1}, 2-1i)

	y, info, err := ExpMV(action, 0, x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !info.Converged || info.Matvecs != 0 {
		t.Fatalf("%#v", info)
	}
	for i := 0; i < 3; i++ {
		if y.At(i) != x.At(i) {
			t.Fatalf("%d %f %f", i, y.At(i), x.At(i))
		}
	}
}

func TestExpMVZeroVector(t *testing.T) {
	t.Parallel()
	action := func(y, x *tensor.Dense) {
		resetCopy(y, x)
	}
	x := tensor.Zeros(3)
	y, info, err := ExpMV(action, 1, x)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !info.Converged {
		t.Fatalf("%#v", info)
	}
	for i := 0; i < 3; i++ {
		if y.At(i) != 0 {
			t.Fatalf("%d %f", i, y.At(i))
		}
	}
}

// taylorExp computes exp(z*A)*x by the Taylor series in double
// precision.
func taylorExp(a [][]complex128, z complex128, x *tensor.Dense) []complex128 {
	dim := len(a)
	term := make([]complex128, dim)
	for i := 0; i < dim; i++ {
		term[i] = complex128(x.At(i))
	}
	y := make([]complex128, dim)
	copy(y, term)
	for k := 1; k < 80; k++ {
		next := make([]complex128, dim)
		for i := range a {
			var s complex128
			for j := range a[i] {
				s += a[i][j] * term[j]
			}
			next[i] = s * z / complex(float64(k), 0)
		}
		term = next
		for i := range y {
			y[i] += term[i]
		}
	}
	return y
}

func cabs(x complex64) float64 {
	re, im := float64(real(x)), float64(imag(x))
	return math.Sqrt(re*re + im*im)
}
