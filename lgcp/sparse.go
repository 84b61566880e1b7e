package lgcp

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// cooMatrix accumulates triplet entries during finite-element assembly.
// Duplicate (i, j) entries sum on conversion to CSR, which is exactly the
// per-triangle scatter-add the assembly needs.
type cooMatrix struct {
	n    int
	rows []int
	cols []int
	vals []float64
}

func newCOO(n int) *cooMatrix {
	return &cooMatrix{n: n}
}

func (c *cooMatrix) add(i, j int, v float64) {
	c.rows = append(c.rows, i)
	c.cols = append(c.cols, j)
	c.vals = append(c.vals, v)
}

// toCSR converts the triplets to compressed sparse row form, summing
// duplicates and sorting column indices within each row.
func (c *cooMatrix) toCSR() *SparseMatrix {
	perRow := make([][]int, c.n) // triplet indices grouped by row
	for k, i := range c.rows {
		perRow[i] = append(perRow[i], k)
	}
	s := &SparseMatrix{N: c.n, RowPtr: make([]int, c.n+1)}
	for i := 0; i < c.n; i++ {
		ks := perRow[i]
		sort.Slice(ks, func(a, b int) bool { return c.cols[ks[a]] < c.cols[ks[b]] })
		for _, k := range ks {
			j := c.cols[k]
			last := len(s.Cols) - 1
			if last >= s.RowPtr[i] && s.Cols[last] == j {
				s.Vals[last] += c.vals[k]
			} else {
				s.Cols = append(s.Cols, j)
				s.Vals = append(s.Vals, c.vals[k])
			}
		}
		s.RowPtr[i+1] = len(s.Cols)
	}
	return s
}

// SparseMatrix is a square sparse matrix in compressed sparse row form.
// Column indices are sorted within each row.
type SparseMatrix struct {
	N      int
	RowPtr []int
	Cols   []int
	Vals   []float64
}

// NNZ returns the number of stored entries.
func (s *SparseMatrix) NNZ() int { return len(s.Vals) }

// MulVec returns s*x.
func (s *SparseMatrix) MulVec(x []float64) []float64 {
	y := make([]float64, s.N)
	for i := 0; i < s.N; i++ {
		var sum float64
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			sum += s.Vals[k] * x[s.Cols[k]]
		}
		y[i] = sum
	}
	return y
}

// Scale multiplies every entry by f in place and returns s.
func (s *SparseMatrix) Scale(f float64) *SparseMatrix {
	for k := range s.Vals {
		s.Vals[k] *= f
	}
	return s
}

// AddDiag returns s + diag(d) as a new matrix.
func (s *SparseMatrix) AddDiag(d []float64) *SparseMatrix {
	coo := newCOO(s.N)
	for i := 0; i < s.N; i++ {
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			coo.add(i, s.Cols[k], s.Vals[k])
		}
		coo.add(i, i, d[i])
	}
	return coo.toCSR()
}

// ScaleCols returns s * diag(d) as a new matrix.
func (s *SparseMatrix) ScaleCols(d []float64) *SparseMatrix {
	out := &SparseMatrix{
		N:      s.N,
		RowPtr: append([]int(nil), s.RowPtr...),
		Cols:   append([]int(nil), s.Cols...),
		Vals:   make([]float64, len(s.Vals)),
	}
	for k, j := range s.Cols {
		out.Vals[k] = s.Vals[k] * d[j]
	}
	return out
}

// Mul returns s*o using a row-wise gather. Output rows keep sorted columns.
func (s *SparseMatrix) Mul(o *SparseMatrix) *SparseMatrix {
	out := &SparseMatrix{N: s.N, RowPtr: make([]int, s.N+1)}
	acc := make(map[int]float64)
	for i := 0; i < s.N; i++ {
		clear(acc)
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			j := s.Cols[k]
			v := s.Vals[k]
			for kk := o.RowPtr[j]; kk < o.RowPtr[j+1]; kk++ {
				acc[o.Cols[kk]] += v * o.Vals[kk]
			}
		}
		cols := make([]int, 0, len(acc))
		for j := range acc {
			cols = append(cols, j)
		}
		sort.Ints(cols)
		for _, j := range cols {
			out.Cols = append(out.Cols, j)
			out.Vals = append(out.Vals, acc[j])
		}
		out.RowPtr[i+1] = len(out.Cols)
	}
	return out
}

// Diag returns the main diagonal.
func (s *SparseMatrix) Diag() []float64 {
	d := make([]float64, s.N)
	for i := 0; i < s.N; i++ {
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			if s.Cols[k] == i {
				d[i] = s.Vals[k]
				break
			}
		}
	}
	return d
}

// At returns the (i, j) entry (zero when not stored).
func (s *SparseMatrix) At(i, j int) float64 {
	for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
		if s.Cols[k] == j {
			return s.Vals[k]
		}
		if s.Cols[k] > j {
			break
		}
	}
	return 0
}

// MaxAsymmetry returns max |A_ij - A_ji|, used by symmetry checks.
func (s *SparseMatrix) MaxAsymmetry() float64 {
	var worst float64
	for i := 0; i < s.N; i++ {
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			d := math.Abs(s.Vals[k] - s.At(s.Cols[k], i))
			if d > worst {
				worst = d
			}
		}
	}
	return worst
}

// ToSym materializes the matrix as a dense symmetric matrix, averaging any
// floating-point asymmetry. Used for Cholesky factorization in the
// posterior sampler and in positive-definiteness checks.
func (s *SparseMatrix) ToSym() *mat.SymDense {
	sym := mat.NewSymDense(s.N, nil)
	for i := 0; i < s.N; i++ {
		for k := s.RowPtr[i]; k < s.RowPtr[i+1]; k++ {
			j := s.Cols[k]
			if j < i {
				continue
			}
			v := (s.Vals[k] + s.At(j, i)) / 2
			sym.SetSym(i, j, v)
		}
	}
	return sym
}
