// Package intrtree compresses a sum of few-site operator terms into a
// shared-prefix interaction tree, from which a sparse matrix product
// operator is assembled.
//
// References:
//   - Generic construction of efficient matrix product operators, C. Hubig, I. P. McCulloch, U. Schollwock
package intrtree

import (
	"fmt"
	"slices"

	"github.com/fumin/tensor"
)

// A Tag disambiguates virtual bonds.
// Two operators acting at the same site may be tensor-identical and yet
// connect different neighbors; their tags tell them apart.
// In and Out hold one label per incoming and outgoing leg.
type Tag struct {
	In  []string
	Out []string
}

func (t *Tag) equal(u *Tag) bool {
	return slices.Equal(t.In, u.In) && slices.Equal(t.Out, u.Out)
}

// LocalOperator is a single-site operator.
// The physical legs of Op are axes 0 (out) and 1 (in); virtual legs, if
// any, trail behind them.
// Strength is meaningful only on terminal nodes of a tree.
type LocalOperator struct {
	Op       *tensor.Dense
	Name     string
	Si       int
	Strength complex64
	Tag      *Tag
}

// Value records the operators and sites an observable term stands for.
type Value struct {
	Names []string
	Sites []int
}

// node site indices strictly increase from parent to child, and the
// depth of a node equals its site index.
type node struct {
	op       LocalOperator
	children []int32
	terminal bool
	value    *Value
}

// Tree is a rooted interaction tree.
// The root has one child per distinct starting configuration.
// Nodes live in an arena and refer to their children by index, which
// keeps ownership hierarchical and deletion cycle-free.
type Tree struct {
	nodes []node
	d     int
	id    *tensor.Dense
}

// New returns an empty tree over sites of physical dimension d.
func New(d int) *Tree {
	t := &Tree{d: d}
	t.id = tensor.Zeros(d, d)
	for i := 0; i < d; i++ {
		t.id.SetAt([]int{i, i}, 1)
	}
	t.nodes = append(t.nodes, node{op: LocalOperator{Si: 0}})
	return t
}

// AddOptions are options for adding a term to a tree.
type AddOptions struct {
	z          *tensor.Dense
	observable bool
}

// NewAddOptions returns the default options for adding a term.
func NewAddOptions() AddOptions {
	return AddOptions{}
}

// Z sets the fermionic parity operator threaded through the insertion.
func (opt AddOptions) Z(z *tensor.Dense) AddOptions {
	opt.z = z
	return opt
}

// Observable marks the term as an observable, whose names and sites are
// recorded on the terminal node.
func (opt AddOptions) Observable() AddOptions {
	opt.observable = true
	return opt
}

// AddIntr1 adds a single-site term.
func (t *Tree) AddIntr1(op *tensor.Dense, name string, si int, strength complex64, options ...AddOptions) {
	opt := NewAddOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if strength == 0 {
		return
	}

	var value *Value
	if opt.observable {
		value = &Value{Names: []string{name}, Sites: []int{si}}
	}
	ops := []LocalOperator{{Op: op, Name: name, Si: si}}
	t.insert(ops, strength, value, nil)
}

// AddIntr2 adds a two-site term.
// Sites need not be ordered; when a parity operator is supplied, each
// transposition of the operands flips the sign of strength.
func (t *Tree) AddIntr2(ops [2]*tensor.Dense, names [2]string, sites [2]int, strength complex64, options ...AddOptions) {
	opt := NewAddOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if strength == 0 {
		return
	}

	if sites[0] > sites[1] {
		ops[0], ops[1] = ops[1], ops[0]
		names[0], names[1] = names[1], names[0]
		sites[0], sites[1] = sites[1], sites[0]
		if opt.z != nil {
			strength = -strength
		}
	}
	if sites[0] == sites[1] {
		t.AddIntr1(mul(ops[0], ops[1]), names[0]+names[1], sites[0], strength, options...)
		return
	}

	var value *Value
	if opt.observable {
		value = &Value{Names: names[:], Sites: sites[:]}
	}
	tags := assignTags2(ops, names)
	los := []LocalOperator{
		{Op: ops[0], Name: names[0], Si: sites[0], Tag: tags[0]},
		{Op: ops[1], Name: names[1], Si: sites[1], Tag: tags[1]},
	}
	t.insert(los, strength, value, opt.z)
}

// AddIntr3 adds a three-site term.
// Sites need not be distinct nor ordered: colliding sites reduce the
// term to a two-site one by multiplying the colliding operators in
// chronological order, and when a parity operator is supplied, each
// transposition of the operands flips the sign of strength.
func (t *Tree) AddIntr3(ops [3]*tensor.Dense, names [3]string, sites [3]int, strength complex64, options ...AddOptions) {
	opt := NewAddOptions()
	if len(options) > 0 {
		opt = options[0]
	}
	if strength == 0 {
		return
	}

	// Sort by site with compare-and-swaps, tracking the fermionic sign.
	swap := func(i, j int) {
		ops[i], ops[j] = ops[j], ops[i]
		names[i], names[j] = names[j], names[i]
		sites[i], sites[j] = sites[j], sites[i]
		if opt.z != nil {
			strength = -strength
		}
	}
	if sites[0] > sites[1] {
		swap(0, 1)
	}
	if sites[1] > sites[2] {
		swap(1, 2)
	}
	if sites[0] > sites[1] {
		swap(0, 1)
	}

	switch {
	case sites[0] == sites[1]:
		t.AddIntr2([2]*tensor.Dense{mul(ops[0], ops[1]), ops[2]}, [2]string{names[0] + names[1], names[2]}, [2]int{sites[0], sites[2]}, strength, AddOptions{z: opt.z, observable: opt.observable})
		return
	case sites[1] == sites[2]:
		t.AddIntr2([2]*tensor.Dense{ops[0], mul(ops[1], ops[2])}, [2]string{names[0], names[1] + names[2]}, [2]int{sites[0], sites[1]}, strength, AddOptions{z: opt.z, observable: opt.observable})
		return
	}

	var value *Value
	if opt.observable {
		value = &Value{Names: names[:], Sites: sites[:]}
	}
	tags := assignTags3(ops, names)
	los := []LocalOperator{
		{Op: ops[0], Name: names[0], Si: sites[0], Tag: tags[0]},
		{Op: ops[1], Name: names[1], Si: sites[1], Tag: tags[1]},
		{Op: ops[2], Name: names[2], Si: sites[2], Tag: tags[2]},
	}
	t.insert(los, strength, value, opt.z)
}

// assignTags2 labels the virtual bond of a two-site term.
// Purely physical operators carry no virtual bonds and get no tags.
func assignTags2(ops [2]*tensor.Dense, names [2]string) [2]*Tag {
	if len(ops[0].Shape()) <= 2 && len(ops[1].Shape()) <= 2 {
		return [2]*Tag{}
	}
	n1, n2 := names[0], names[1]
	if names[1] == names[0] {
		n2 += "2"
	}
	b12 := n1 + "<-" + n2
	return [2]*Tag{
		{In: []string{"phys"}, Out: []string{"phys", b12}},
		{In: []string{b12, "phys"}, Out: []string{"phys"}},
	}
}

// assignTags3 labels the two virtual bonds of a three-site term.
// Duplicate names are disambiguated by their position index.
func assignTags3(ops [3]*tensor.Dense, names [3]string) [3]*Tag {
	if len(ops[0].Shape()) <= 2 && len(ops[1].Shape()) <= 2 && len(ops[2].Shape()) <= 2 {
		return [3]*Tag{}
	}
	n1, n2, n3 := names[0], names[1], names[2]
	if names[1] == names[0] {
		n2 += "2"
	}
	if names[2] == names[0] || names[2] == names[1] {
		n3 += "3"
	}
	b12 := n1 + "<-" + n2
	b23 := n2 + "<-" + n3
	return [3]*Tag{
		{In: []string{"phys"}, Out: []string{"phys", b12}},
		{In: []string{b12, "phys"}, Out: []string{"phys", b23}},
		{In: []string{b23, "phys"}, Out: []string{"phys"}},
	}
}

// insert adds a term with strictly ascending site indices to the tree.
// The path from the root enumerates the operator acting at each integer
// site from 1 up to the term's rightmost site, padding with identity
// placeholders, and with parity placeholders strictly between the first
// two occupied sites when z is given.
func (t *Tree) insert(ops []LocalOperator, strength complex64, value *Value, z *tensor.Dense) {
	for i := range ops {
		if ops[i].Si <= 0 {
			panic(fmt.Sprintf("site %d", ops[i].Si))
		}
		if i > 0 && ops[i-1].Si >= ops[i].Si {
			panic(fmt.Sprintf("sites not strictly ascending: %d %d", ops[i-1].Si, ops[i].Si))
		}
	}
	if z != nil && len(ops) == 3 {
		// Fuse the parity connector into the middle operator.
		ops[1].Op = mul(z, ops[1].Op)
	}

	last := ops[len(ops)-1]
	path := make([]int32, 0, last.Si)
	path = append(path, 0)
	cur := int32(0)
	oi := 0
	for si := 1; si < last.Si; si++ {
		var lo LocalOperator
		switch {
		case si == ops[oi].Si:
			lo = ops[oi]
			oi++
		case z != nil && len(ops) >= 2 && si > ops[0].Si && si < ops[1].Si:
			lo = LocalOperator{Op: z, Name: "Z", Si: si}
		default:
			lo = LocalOperator{Op: t.id, Name: "I", Si: si}
		}
		cur = t.child(cur, lo)
		path = append(path, cur)
	}

	t.terminate(path, last, strength, value)
}

// child descends into the child of parent matching lo, creating it if
// absent. Tags reflect the most recently added branch.
func (t *Tree) child(parent int32, lo LocalOperator) int32 {
	for _, ci := range t.nodes[parent].children {
		c := &t.nodes[ci]
		if sameOperator(c.op, lo) {
			c.op.Tag = lo.Tag
			return ci
		}
	}

	t.nodes = append(t.nodes, node{op: lo})
	ci := int32(len(t.nodes) - 1)
	t.nodes[parent].children = append(t.nodes[parent].children, ci)
	return ci
}

// terminate merges the terminal operator into the children of the last
// node of path. Strengths of colliding terms add up; a strength that
// cancels to exactly zero removes the terminal and prunes the now dead
// part of its path.
func (t *Tree) terminate(path []int32, lo LocalOperator, strength complex64, value *Value) {
	parent := path[len(path)-1]
	for _, ci := range t.nodes[parent].children {
		c := &t.nodes[ci]
		if !sameOperator(c.op, lo) {
			continue
		}
		c.op.Tag = lo.Tag
		c.op.Strength += strength
		c.terminal = true
		if value != nil {
			c.value = value
		}
		if c.op.Strength == 0 {
			c.terminal = false
			c.value = nil
			if len(c.children) == 0 {
				t.removeChild(parent, ci)
				t.prune(path)
			}
		}
		return
	}

	lo.Strength = strength
	t.nodes = append(t.nodes, node{op: lo, terminal: true, value: value})
	ci := int32(len(t.nodes) - 1)
	t.nodes[parent].children = append(t.nodes[parent].children, ci)
}

// prune removes childless non-terminal nodes along path, leaf to root.
func (t *Tree) prune(path []int32) {
	for k := len(path) - 1; k >= 1; k-- {
		n := &t.nodes[path[k]]
		if len(n.children) > 0 || n.terminal {
			return
		}
		t.removeChild(path[k-1], path[k])
	}
}

func (t *Tree) removeChild(parent, child int32) {
	cs := t.nodes[parent].children
	i := slices.Index(cs, child)
	if i < 0 {
		panic(fmt.Sprintf("%d %d", parent, child))
	}
	t.nodes[parent].children = slices.Delete(cs, i, i+1)
}

// sameOperator reports whether two operators occupy the same node.
// Operators are compared by tensor identity plus tag; tags are compared
// only when both are present.
func sameOperator(a, b LocalOperator) bool {
	if !tensorEqual(a.Op, b.Op) {
		return false
	}
	if a.Tag != nil && b.Tag != nil && !a.Tag.equal(b.Tag) {
		return false
	}
	return true
}

func tensorEqual(a, b *tensor.Dense) bool {
	if a == b {
		return true
	}
	if !slices.Equal(a.Shape(), b.Shape()) {
		return false
	}
	for ijk, v := range a.All() {
		if b.At(ijk...) != v {
			return false
		}
	}
	return true
}

// Empty reports whether the tree has no remaining descendant path.
func (t *Tree) Empty() bool {
	return len(t.nodes[0].children) == 0
}

// Equal reports whether two trees are isomorphic: the same node
// operators, tags and strengths, ignoring sibling order.
func (t *Tree) Equal(u *Tree) bool {
	return t.equalNodes(u, 0, 0)
}

func (t *Tree) equalNodes(u *Tree, a, b int32) bool {
	an, bn := &t.nodes[a], &u.nodes[b]
	if an.terminal != bn.terminal {
		return false
	}
	if an.terminal && an.op.Strength != bn.op.Strength {
		return false
	}
	if len(an.children) != len(bn.children) {
		return false
	}
	used := make([]bool, len(bn.children))
	for _, ac := range an.children {
		found := false
		for k, bc := range bn.children {
			if used[k] {
				continue
			}
			if !sameOperator(t.nodes[ac].op, u.nodes[bc].op) {
				continue
			}
			if !tagsEqual(t.nodes[ac].op.Tag, u.nodes[bc].op.Tag) {
				continue
			}
			if t.equalNodes(u, ac, bc) {
				used[k] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func tagsEqual(a, b *Tag) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return a.equal(b)
}

// Observables returns the value payloads of all terminal nodes that
// were added as observables.
func (t *Tree) Observables() []*Value {
	vs := make([]*Value, 0)
	var walk func(int32)
	walk = func(n int32) {
		if t.nodes[n].value != nil {
			vs = append(vs, t.nodes[n].value)
		}
		for _, c := range t.nodes[n].children {
			walk(c)
		}
	}
	walk(0)
	return vs
}

func mul(a, b *tensor.Dense) *tensor.Dense {
	return tensor.Product(tensor.Zeros(1), a, b, [][2]int{{1, 0}})
}
