package mps

import (
	"fmt"
	"math"
	"math/cmplx"
	"slices"

	"github.com/fumin/tensor"
)

// Truncation controls the discarding of small singular values.
// Cutoff is relative to the largest singular value.
// A zero value keeps everything.
type Truncation struct {
	Cutoff float64
	MaxDim int
}

// SVD computes the truncated singular value decomposition of a matrix,
// such that a approximately equals u * diag(s) * v.H().
// It always keeps at least one singular value.
// The returned discarded weight is the relative two-norm of the dropped
// singular values.
func SVD(a *tensor.Dense, tr Truncation) (*tensor.Dense, []float64, *tensor.Dense, float64) {
	shape := a.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("%v", shape))
	}
	rows, cols := shape[0], shape[1]
	if rows < cols {
		// One-sided Jacobi needs rows >= cols for stable convergence.
		vt, s, ut, w := SVD(a.H(), tr)
		return ut, s, vt, w
	}

	// Work in complex128 to keep the rotations accurate.
	b := make([][]complex128, cols)
	for j := range b {
		b[j] = make([]complex128, rows)
	}
	for ij, val := range a.All() {
		b[ij[1]][ij[0]] = complex128(val)
	}
	v := make([][]complex128, cols)
	for j := range v {
		v[j] = make([]complex128, cols)
		v[j][j] = 1
	}
	jacobi(b, v)

	sigma := make([]float64, cols)
	for j := range b {
		sigma[j] = colNorm(b[j])
	}
	perm := make([]int, cols)
	for j := range perm {
		perm[j] = j
	}
	slices.SortStableFunc(perm, func(x, y int) int {
		switch {
		case sigma[x] > sigma[y]:
			return -1
		case sigma[x] < sigma[y]:
			return 1
		}
		return 0
	})

	// Truncate.
	keep := cols
	if tr.MaxDim > 0 && tr.MaxDim < keep {
		keep = tr.MaxDim
	}
	if tr.Cutoff > 0 {
		thresh := tr.Cutoff * sigma[perm[0]]
		for k := 1; k < keep; k++ {
			if sigma[perm[k]] <= thresh {
				keep = k
				break
			}
		}
	}
	if keep < 1 {
		keep = 1
	}
	var total, dropped float64
	for j := range sigma {
		total += sigma[j] * sigma[j]
	}
	for k := keep; k < cols; k++ {
		dropped += sigma[perm[k]] * sigma[perm[k]]
	}
	var discarded float64
	if total > 0 {
		discarded = math.Sqrt(dropped / total)
	}

	s := make([]float64, keep)
	u := tensor.Zeros(rows, keep)
	vd := tensor.Zeros(cols, keep)
	for k := range keep {
		j := perm[k]
		s[k] = sigma[j]
		d := sigma[j]
		if d == 0 {
			d = 1
		}
		for i := range rows {
			u.SetAt([]int{i, k}, complex64(complex(real(b[j][i])/d, imag(b[j][i])/d)))
		}
		for i := range cols {
			vd.SetAt([]int{i, k}, complex64(v[j][i]))
		}
	}
	return u, s, vd, discarded
}

// jacobi orthogonalizes the columns of b by plane rotations,
// accumulating the rotations in v.
// Columns of b are stored as rows for locality.
func jacobi(b, v [][]complex128) {
	n := len(b)
	const maxSweeps = 60
	for range maxSweeps {
		rotated := false
		for p := 0; p < n-1; p++ {
			for q := p + 1; q < n; q++ {
				var alpha, beta float64
				var gamma complex128
				for i := range b[p] {
					alpha += real(b[p][i])*real(b[p][i]) + imag(b[p][i])*imag(b[p][i])
					beta += real(b[q][i])*real(b[q][i]) + imag(b[q][i])*imag(b[q][i])
					gamma += cmplx.Conj(b[p][i]) * b[q][i]
				}
				g := cmplx.Abs(gamma)
				if g <= 1e-15*math.Sqrt(alpha*beta) {
					continue
				}
				rotated = true

				// Hermitian 2x2 eigenproblem, Golub and Van Loan style.
				zeta := (beta - alpha) / (2 * g)
				var t float64
				if zeta >= 0 {
					t = 1 / (zeta + math.Sqrt(1+zeta*zeta))
				} else {
					t = -1 / (-zeta + math.Sqrt(1+zeta*zeta))
				}
				c := 1 / math.Sqrt(1+t*t)
				s := c * t
				phase := gamma / complex(g, 0)

				cc := complex(c, 0)
				ss := complex(s, 0)
				for i := range b[p] {
					bp, bq := b[p][i], b[q][i]
					b[p][i] = cc*bp - ss*cmplx.Conj(phase)*bq
					b[q][i] = ss*phase*bp + cc*bq
				}
				for i := range v[p] {
					vp, vq := v[p][i], v[q][i]
					v[p][i] = cc*vp - ss*cmplx.Conj(phase)*vq
					v[q][i] = ss*phase*vp + cc*vq
				}
			}
		}
		if !rotated {
			break
		}
	}
}

func colNorm(col []complex128) float64 {
	var ss float64
	for _, x := range col {
		ss += real(x)*real(x) + imag(x)*imag(x)
	}
	return math.Sqrt(ss)
}
