package linop

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// COO accumulates matrix entries in coordinate form during assembly.
// Duplicate (i,j) pairs are allowed and are summed when converting to
// CSR, which is the natural fit for finite-element element loops.
type COO struct {
	n int
	i []int
	j []int
	v []float64
}

// NewCOO creates an empty n×n coordinate accumulator.
func NewCOO(n int) *COO {
	return &COO{n: n}
}

// Add records a contribution v at (i, j).
func (c *COO) Add(i, j int, v float64) {
	if i < 0 || i >= c.n || j < 0 || j >= c.n {
		panic(ErrDim)
	}
	c.i = append(c.i, i)
	c.j = append(c.j, j)
	c.v = append(c.v, v)
}

type cooSort struct{ c *COO }

func (s cooSort) Len() int { return len(s.c.i) }
func (s cooSort) Less(a, b int) bool {
	if s.c.i[a] != s.c.i[b] {
		return s.c.i[a] < s.c.i[b]
	}
	return s.c.j[a] < s.c.j[b]
}
func (s cooSort) Swap(a, b int) {
	s.c.i[a], s.c.i[b] = s.c.i[b], s.c.i[a]
	s.c.j[a], s.c.j[b] = s.c.j[b], s.c.j[a]
	s.c.v[a], s.c.v[b] = s.c.v[b], s.c.v[a]
}

// ToCSR sorts the entries, merges duplicates, drops exact zeros and
// returns the compressed-sparse-row operator.
func (c *COO) ToCSR() *CSR {
	sort.Sort(cooSort{c})
	m := &CSR{
		n:      c.n,
		rowPtr: make([]int, c.n+1),
	}
	for k := 0; k < len(c.i); {
		i, j := c.i[k], c.j[k]
		v := c.v[k]
		k++
		for k < len(c.i) && c.i[k] == i && c.j[k] == j {
			v += c.v[k]
			k++
		}
		if v == 0 {
			continue
		}
		m.colIdx = append(m.colIdx, j)
		m.val = append(m.val, v)
		m.rowPtr[i+1]++
	}
	for i := 0; i < c.n; i++ {
		m.rowPtr[i+1] += m.rowPtr[i]
	}
	return m
}

// CSR is a compressed-sparse-row square matrix operator.
type CSR struct {
	n      int
	rowPtr []int
	colIdx []int
	val    []float64
}

func (m *CSR) Dim() int { return m.n }

// NNZ returns the number of stored entries.
func (m *CSR) NNZ() int { return len(m.val) }

func (m *CSR) Apply(dst, x []float64) {
	checkDim(m.n, dst, x)
	for i := 0; i < m.n; i++ {
		s := 0.0
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			s += m.val[k] * x[m.colIdx[k]]
		}
		dst[i] = s
	}
}

func (m *CSR) AsDense() *mat.Dense {
	out := mat.NewDense(m.n, m.n, nil)
	for i := 0; i < m.n; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			out.Set(i, m.colIdx[k], m.val[k])
		}
	}
	return out
}

// ScaleRows multiplies every entry of row i by s[i], returning a new
// operator and leaving the receiver unchanged. Used to fold a lumped
// mass inverse into an assembled matrix.
func (m *CSR) ScaleRows(s []float64) *CSR {
	if len(s) != m.n {
		panic(ErrDim)
	}
	out := &CSR{
		n:      m.n,
		rowPtr: append([]int(nil), m.rowPtr...),
		colIdx: append([]int(nil), m.colIdx...),
		val:    make([]float64, len(m.val)),
	}
	for i := 0; i < m.n; i++ {
		for k := m.rowPtr[i]; k < m.rowPtr[i+1]; k++ {
			out.val[k] = m.val[k] * s[i]
		}
	}
	return out
}
