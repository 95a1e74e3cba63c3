package intrtree

import (
	"fmt"

	"github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// MPO assembles the sparse matrix product operator of the tree over a
// chain of l sites.
// The virtual bond between sites i and i+1 enumerates the tree nodes at
// depth i that still await their continuation, preceded by a finished
// channel that carries the identity and the accumulated strengths of
// already terminated terms.
// Tensors follow the axis order (left, right, up, down).
func (t *Tree) MPO(l int) ([]*tensor.Dense, error) {
	levels := make([][]int32, l+1)
	col := make([]int, len(t.nodes))
	var walk func(n int32) error
	walk = func(n int32) error {
		nd := &t.nodes[n]
		si := nd.op.Si
		if si > l {
			return errors.Errorf("site %d beyond chain of length %d", si, l)
		}
		if si == l && len(nd.children) > 0 {
			return errors.Errorf("term extends beyond chain of length %d", l)
		}
		if n != 0 {
			if len(nd.op.Op.Shape()) != 2 {
				return errors.Errorf("%s at site %d carries virtual legs", nd.op.Name, si)
			}
			if len(nd.children) > 0 {
				// Only continuing nodes occupy a virtual bond state.
				col[n] = 1 + len(levels[si])
				levels[si] = append(levels[si], n)
			}
		}
		for _, c := range nd.children {
			if err := walk(c); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(0); err != nil {
		return nil, errors.Wrap(err, "")
	}

	ws := make([]*tensor.Dense, 0, l)
	for si := 1; si <= l; si++ {
		rows := 1 + len(levels[si-1])
		if si == 1 {
			// The left boundary holds only the root state.
			rows = 1
		}
		cols := 1 + len(levels[si])
		if si == l {
			cols = 1
		}
		w := tensor.Zeros(rows, cols, t.d, t.d)

		// The finished channel propagates the identity.
		if si > 1 {
			for i := 0; i < t.d; i++ {
				w.SetAt([]int{0, 0, i, i}, 1)
			}
		}

		parents := []int32{0}
		if si > 1 {
			parents = levels[si-1]
		}
		for _, p := range parents {
			row := col[p]
			if si == 1 {
				row = 0
			}
			for _, n := range t.nodes[p].children {
				nd := &t.nodes[n]
				if nd.op.Si != si {
					panic(fmt.Sprintf("depth %d, site %d", si, nd.op.Si))
				}
				if len(nd.children) > 0 {
					setBlock(w, row, col[n], nd.op.Op, 1)
				}
				if nd.terminal {
					setBlock(w, row, 0, nd.op.Op, nd.op.Strength)
				}
			}
		}
		ws = append(ws, w)
	}
	return ws, nil
}

// setBlock adds c times the d by d operator op into the (row, col)
// block of w.
func setBlock(w *tensor.Dense, row, col int, op *tensor.Dense, c complex64) {
	for ij, v := range op.All() {
		if v == 0 {
			continue
		}
		ix := []int{row, col, ij[0], ij[1]}
		w.SetAt(ix, w.At(ix...)+c*v)
	}
}
