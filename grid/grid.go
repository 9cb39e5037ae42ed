// Package grid implements dense cubic lookup tables indexed by integer (x,y,z) triples.
package grid

// Table is an immutable cubic array of size³ values. Values are stored
// with x as the slowest varying axis and z the fastest:
//
//	index = x*size² + y*size + z
type Table[T any] struct {
	size int
	data []T
}

// Fill creates a table of size³ values by calling gen exactly once for every
// coordinate triple in lexicographic order, x outermost and z innermost.
// size must be 2 or larger.
func Fill[T any](size int, gen func(x, y, z int) T) *Table[T] {
	if size < 2 {
		panic("grid size must be at least 2")
	}
	data := make([]T, 0, size*size*size)
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				data = append(data, gen(x, y, z))
			}
		}
	}
	return &Table[T]{size: size, data: data}
}

// FromSlice wraps data as a table. data must be laid out as described in [Table]
// and have exactly size³ elements. The table takes ownership of data.
func FromSlice[T any](size int, data []T) *Table[T] {
	if size < 2 {
		panic("grid size must be at least 2")
	} else if len(data) != size*size*size {
		panic("grid data length mismatch")
	}
	return &Table[T]{size: size, data: data}
}

// Size returns the amount of values along each axis.
func (t *Table[T]) Size() int { return t.size }

// Len returns size³.
func (t *Table[T]) Len() int { return len(t.data) }

// At returns the value stored at (x,y,z). It panics if any coordinate is out of [0,size).
func (t *Table[T]) At(x, y, z int) T {
	return t.data[t.Index(x, y, z)]
}

// Index returns the position of (x,y,z) in the table's flat layout.
func (t *Table[T]) Index(x, y, z int) int {
	sz := t.size
	if uint(x) >= uint(sz) || uint(y) >= uint(sz) || uint(z) >= uint(sz) {
		panic("grid index out of range")
	}
	return x*sz*sz + y*sz + z
}

// Coords is the inverse of [Table.Index].
func (t *Table[T]) Coords(idx int) (x, y, z int) {
	sz := t.size
	if uint(idx) >= uint(len(t.data)) {
		panic("grid index out of range")
	}
	return idx / (sz * sz), (idx / sz) % sz, idx % sz
}
