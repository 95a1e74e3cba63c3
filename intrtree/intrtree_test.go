package intrtree

import (
	"testing"

	"github.com/fumin/tensor"
	"github.com/stretchr/testify/require"
)

var (
	sx = [][]complex64{
		{0, 1},
		{1, 0},
	}
	sz = [][]complex64{
		{1, 0},
		{0, -1},
	}
	// Annihilation and creation operators of a spinless fermion, and
	// the Jordan-Wigner parity string operator.
	annihilate = [][]complex64{
		{0, 1},
		{0, 0},
	}
	create = [][]complex64{
		{0, 0},
		{1, 0},
	}
	parity = [][]complex64{
		{1, 0},
		{0, -1},
	}
)

func TestAddOrderIndependence(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 2}, -1)
	a.AddIntr1(tensor.T2(sx), "Sx", 1, 0.5)
	a.AddIntr1(tensor.T2(sx), "Sx", 3, 0.25)

	b := New(2)
	b.AddIntr1(tensor.T2(sx), "Sx", 3, 0.25)
	b.AddIntr1(tensor.T2(sx), "Sx", 1, 0.5)
	b.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 2}, -1)

	require.True(t, a.Equal(b))
	require.True(t, b.Equal(a))
}

func TestStrengthMerge(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr1(tensor.T2(sx), "Sx", 2, 0.5)
	a.AddIntr1(tensor.T2(sx), "Sx", 2, 0.25)

	b := New(2)
	b.AddIntr1(tensor.T2(sx), "Sx", 2, 0.75)

	require.True(t, a.Equal(b))
}

func TestCancellation(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 3}, 2)
	require.False(t, a.Empty())
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 3}, -2)
	require.True(t, a.Empty())
}

func TestThreeSiteChain(t *testing.T) {
	t.Parallel()
	id := tensor.T2([][]complex64{{1, 0}, {0, 1}})
	a := New(2)
	a.AddIntr3([3]*tensor.Dense{id, id, id}, [3]string{"A", "B", "C"}, [3]int{1, 2, 3}, 2)

	// A single path of depth 3 ending in a terminal of strength 2.
	ni := int32(0)
	for depth := 1; depth <= 3; depth++ {
		require.Len(t, a.nodes[ni].children, 1)
		ni = a.nodes[ni].children[0]
		require.Equal(t, depth, a.nodes[ni].op.Si)
	}
	require.True(t, a.nodes[ni].terminal)
	require.Equal(t, complex64(2), a.nodes[ni].op.Strength)
	require.Empty(t, a.nodes[ni].children)

	a.AddIntr3([3]*tensor.Dense{id, id, id}, [3]string{"A", "B", "C"}, [3]int{1, 2, 3}, -2)
	require.True(t, a.Empty())
}

func TestCancellationKeepsSiblings(t *testing.T) {
	t.Parallel()
	a := New(2)
	// Both terms share the prefix at site 1.
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 2}, 1)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sx)}, [2]string{"Sz", "Sx"}, [2]int{1, 3}, 1)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 2}, -1)

	b := New(2)
	b.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sx)}, [2]string{"Sz", "Sx"}, [2]int{1, 3}, 1)

	require.False(t, a.Empty())
	require.True(t, a.Equal(b))
}

func TestFermionicSign(t *testing.T) {
	t.Parallel()
	zopt := NewAddOptions().Z(tensor.T2(parity))

	// One transposition flips the sign when a parity operator is given.
	a := New(2)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(annihilate), tensor.T2(create)}, [2]string{"c", "cdag"}, [2]int{4, 1}, 1, zopt)
	b := New(2)
	b.AddIntr2([2]*tensor.Dense{tensor.T2(create), tensor.T2(annihilate)}, [2]string{"cdag", "c"}, [2]int{1, 4}, -1, zopt)
	require.True(t, a.Equal(b))

	// Without a parity operator the sign is unchanged.
	c := New(2)
	c.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sx)}, [2]string{"Sz", "Sx"}, [2]int{3, 1}, 1)
	d := New(2)
	d.AddIntr2([2]*tensor.Dense{tensor.T2(sx), tensor.T2(sz)}, [2]string{"Sx", "Sz"}, [2]int{1, 3}, 1)
	require.True(t, c.Equal(d))
}

func TestFermionicSignTwoTranspositions(t *testing.T) {
	t.Parallel()
	zopt := NewAddOptions().Z(tensor.T2(parity))

	// A cyclic rotation is two transpositions, so the sign is even.
	a := New(2)
	a.AddIntr3(
		[3]*tensor.Dense{tensor.T2(sz), tensor.T2(create), tensor.T2(annihilate)},
		[3]string{"n", "cdag", "c"}, [3]int{5, 1, 3}, 1, zopt)
	b := New(2)
	b.AddIntr3(
		[3]*tensor.Dense{tensor.T2(create), tensor.T2(annihilate), tensor.T2(sz)},
		[3]string{"cdag", "c", "n"}, [3]int{1, 3, 5}, 1, zopt)
	require.True(t, a.Equal(b))
}

func TestZString(t *testing.T) {
	t.Parallel()
	zopt := NewAddOptions().Z(tensor.T2(parity))

	// The parity string threads the sites strictly between the first
	// two operators; an explicit equivalent term matches.
	a := New(2)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(create), tensor.T2(annihilate)}, [2]string{"cdag", "c"}, [2]int{1, 3}, 1, zopt)

	b := New(2)
	b.AddIntr3(
		[3]*tensor.Dense{tensor.T2(create), tensor.T2(parity), tensor.T2(annihilate)},
		[3]string{"cdag", "Z", "c"}, [3]int{1, 2, 3}, 1)
	require.True(t, a.Equal(b))
}

func TestSiteCollision(t *testing.T) {
	t.Parallel()
	// Colliding sites multiply the operators in their given order.
	a := New(2)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(create), tensor.T2(annihilate)}, [2]string{"cdag", "c"}, [2]int{2, 2}, 1)

	number := [][]complex64{
		{0, 0},
		{0, 1},
	}
	b := New(2)
	b.AddIntr1(tensor.T2(number), "n", 2, 1)
	require.True(t, a.Equal(b))
}

func TestAddIntr3Collision(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr3(
		[3]*tensor.Dense{tensor.T2(create), tensor.T2(annihilate), tensor.T2(sz)},
		[3]string{"cdag", "c", "Sz"}, [3]int{1, 1, 4}, 1)

	number := [][]complex64{
		{0, 0},
		{0, 1},
	}
	b := New(2)
	b.AddIntr2([2]*tensor.Dense{tensor.T2(number), tensor.T2(sz)}, [2]string{"n", "Sz"}, [2]int{1, 4}, 1)
	require.True(t, a.Equal(b))
}

func TestZeroStrengthNoop(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr1(tensor.T2(sx), "Sx", 1, 0)
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 2}, 0)
	require.True(t, a.Empty())
}

func TestTags(t *testing.T) {
	t.Parallel()
	// Three-leg operators are tensor-identical across the two terms,
	// and are told apart only by their bond tags.
	op1 := tensor.Zeros(2, 2, 1)
	op1.SetAt([]int{0, 1, 0}, 1)
	op2 := tensor.Zeros(2, 2, 1, 1)
	op2.SetAt([]int{1, 0, 0, 0}, 1)
	op3 := tensor.Zeros(2, 2, 1)
	op3.SetAt([]int{1, 1, 0}, 1)

	a := New(2)
	a.AddIntr3([3]*tensor.Dense{op1, op2, op3}, [3]string{"A", "B", "C"}, [3]int{1, 2, 3}, 1)
	b := New(2)
	b.AddIntr3([3]*tensor.Dense{op1, op2, op3}, [3]string{"A", "B", "C"}, [3]int{1, 2, 3}, 1)
	require.True(t, a.Equal(b))

	c := New(2)
	c.AddIntr3([3]*tensor.Dense{op1, op2, op3}, [3]string{"A", "D", "C"}, [3]int{1, 2, 3}, 1)
	require.False(t, a.Equal(c))
}

func TestObservables(t *testing.T) {
	t.Parallel()
	a := New(2)
	a.AddIntr1(tensor.T2(sz), "Sz", 2, 1, NewAddOptions().Observable())
	a.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{1, 3}, 1, NewAddOptions().Observable())
	a.AddIntr1(tensor.T2(sx), "Sx", 1, 1)

	vs := a.Observables()
	require.Len(t, vs, 2)
	names := make(map[string][]int)
	for _, v := range vs {
		key := ""
		for _, n := range v.Names {
			key += n
		}
		names[key] = v.Sites
	}
	require.Equal(t, []int{2}, names["Sz"])
	require.Equal(t, []int{1, 3}, names["SzSz"])
}

func TestMPO(t *testing.T) {
	t.Parallel()
	const l = 4
	h := complex64(0.7)
	tr := New(2)
	for i := 1; i < l; i++ {
		tr.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{i, i + 1}, -1)
	}
	for i := 1; i <= l; i++ {
		tr.AddIntr1(tensor.T2(sx), "Sx", i, -h)
	}
	ws, err := tr.MPO(l)
	require.NoError(t, err)
	require.Len(t, ws, l)
	// The Ising chain compresses to bond dimension 3.
	require.Equal(t, []int{1, 3, 2, 2}, ws[0].Shape())
	require.Equal(t, []int{3, 3, 2, 2}, ws[1].Shape())
	require.Equal(t, []int{3, 1, 2, 2}, ws[l-1].Shape())

	got := densify(ws)
	want := denseIsing(l, h)
	for i := range want {
		for j := range want[i] {
			require.InDelta(t, real(want[i][j]), real(got[i][j]), 1e-5, "%d %d", i, j)
			require.InDelta(t, imag(want[i][j]), imag(got[i][j]), 1e-5, "%d %d", i, j)
		}
	}
}

func TestMPOTooLong(t *testing.T) {
	t.Parallel()
	tr := New(2)
	tr.AddIntr2([2]*tensor.Dense{tensor.T2(sz), tensor.T2(sz)}, [2]string{"Sz", "Sz"}, [2]int{2, 5}, 1)
	_, err := tr.MPO(4)
	require.Error(t, err)
}

// densify contracts an MPO into its dense matrix.
func densify(ws []*tensor.Dense) [][]complex64 {
	d := ws[0].Shape()[2]
	// cur[b][i][j] is the partial contraction with open right bond b.
	cur := make([][][]complex64, ws[0].Shape()[1])
	for b := range cur {
		cur[b] = [][]complex64{{ws[0].At(0, b, 0, 0), ws[0].At(0, b, 0, 1)}, {ws[0].At(0, b, 1, 0), ws[0].At(0, b, 1, 1)}}
	}
	for _, w := range ws[1:] {
		rows, cols := w.Shape()[0], w.Shape()[1]
		dim := len(cur[0]) * d
		next := make([][][]complex64, cols)
		for b2 := range next {
			next[b2] = zeros(dim)
			for b := 0; b < rows; b++ {
				for i := range cur[b] {
					for j := range cur[b][i] {
						if cur[b][i][j] == 0 {
							continue
						}
						for k := 0; k < d; k++ {
							for m := 0; m < d; m++ {
								next[b2][i*d+k][j*d+m] += cur[b][i][j] * w.At(b, b2, k, m)
							}
						}
					}
				}
			}
		}
		cur = next
	}
	return cur[0]
}

func denseIsing(l int, h complex64) [][]complex64 {
	id := [][]complex64{{1, 0}, {0, 1}}
	dim := 1 << l
	ham := zeros(dim)
	site := func(op [][]complex64, i int) [][]complex64 {
		m := [][]complex64{{1}}
		for k := 1; k <= l; k++ {
			if k == i {
				m = kron(m, op)
			} else {
				m = kron(m, id)
			}
		}
		return m
	}
	for i := 1; i < l; i++ {
		zz := site(sz, i)
		z2 := site(sz, i+1)
		for a := range ham {
			for b := range ham[a] {
				var s complex64
				for c := 0; c < dim; c++ {
					s += zz[a][c] * z2[c][b]
				}
				ham[a][b] -= s
			}
		}
	}
	for i := 1; i <= l; i++ {
		x := site(sx, i)
		for a := range ham {
			for b := range ham[a] {
				ham[a][b] -= h * x[a][b]
			}
		}
	}
	return ham
}

func kron(a, b [][]complex64) [][]complex64 {
	ra, ca := len(a), len(a[0])
	rb, cb := len(b), len(b[0])
	m := make([][]complex64, ra*rb)
	for i := range m {
		m[i] = make([]complex64, ca*cb)
	}
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			for k := 0; k < rb; k++ {
				for l := 0; l < cb; l++ {
					m[i*rb+k][j*cb+l] = a[i][j] * b[k][l]
				}
			}
		}
	}
	return m
}

func zeros(dim int) [][]complex64 {
	m := make([][]complex64, dim)
	for i := range m {
		m[i] = make([]complex64, dim)
	}
	return m
}
