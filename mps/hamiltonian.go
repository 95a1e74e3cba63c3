package mps

import (
	"github.com/fumin/tensor"

	"github.com/fumin/tdvp/intrtree"
)

// Pauli matrices.
var (
	PauliX = [][]complex64{
		{0, 1},
		{1, 0},
	}
	PauliY = [][]complex64{
		{0, -1i},
		{1i, 0},
	}
	PauliZ = [][]complex64{
		{1, 0},
		{0, -1},
	}
)

// Ising returns the transverse field Ising model
// H = -\sum_{i} Z_{i} Z_{i+1} - h \sum_{i} X_{i}
// on a chain of l sites. Sites are numbered from 1.
func Ising(l int, h complex64) *intrtree.Tree {
	t := intrtree.New(2)
	for i := 1; i < l; i++ {
		t.AddIntr2(
			[2]*tensor.Dense{tensor.T2(PauliZ), tensor.T2(PauliZ)},
			[2]string{"Sz", "Sz"}, [2]int{i, i + 1}, -1)
	}
	for i := 1; i <= l; i++ {
		t.AddIntr1(tensor.T2(PauliX), "Sx", i, -h)
	}
	return t
}

// MagnetizationZ returns the total magnetization \sum_{i} Z_{i}
// on a chain of l sites.
func MagnetizationZ(l int) *intrtree.Tree {
	t := intrtree.New(2)
	for i := 1; i <= l; i++ {
		t.AddIntr1(tensor.T2(PauliZ), "Sz", i, 1)
	}
	return t
}
