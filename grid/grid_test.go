package grid

import "testing"

func TestFillOrder(t *testing.T) {
	const size = 3
	var calls [][3]int
	tbl := Fill(size, func(x, y, z int) int {
		calls = append(calls, [3]int{x, y, z})
		return x*100 + y*10 + z
	})
	if len(calls) != size*size*size {
		t.Fatalf("generator called %d times, want %d", len(calls), size*size*size)
	}
	for i, c := range calls {
		want := [3]int{i / 9, (i / 3) % 3, i % 3}
		if c != want {
			t.Fatalf("call %d = %v, want %v", i, c, want)
		}
	}
	for x := 0; x < size; x++ {
		for y := 0; y < size; y++ {
			for z := 0; z < size; z++ {
				got := tbl.At(x, y, z)
				if got != x*100+y*10+z {
					t.Errorf("At(%d,%d,%d) = %d", x, y, z, got)
				}
				idx := tbl.Index(x, y, z)
				if idx != x*size*size+y*size+z {
					t.Errorf("Index(%d,%d,%d) = %d", x, y, z, idx)
				}
				cx, cy, cz := tbl.Coords(idx)
				if cx != x || cy != y || cz != z {
					t.Errorf("Coords(%d) = %d,%d,%d", idx, cx, cy, cz)
				}
			}
		}
	}
	if tbl.Size() != size || tbl.Len() != size*size*size {
		t.Errorf("Size()=%d Len()=%d", tbl.Size(), tbl.Len())
	}
}

func TestFromSlice(t *testing.T) {
	data := make([]float32, 8)
	for i := range data {
		data[i] = float32(i)
	}
	tbl := FromSlice(2, data)
	if tbl.At(1, 0, 1) != 5 {
		t.Errorf("At(1,0,1) = %v, want 5", tbl.At(1, 0, 1))
	}
}

func TestPreconditions(t *testing.T) {
	for name, fn := range map[string]func(){
		"small size":   func() { Fill(1, func(x, y, z int) int { return 0 }) },
		"out of range": func() { Fill(2, func(x, y, z int) int { return 0 }).At(0, 2, 0) },
		"negative":     func() { Fill(2, func(x, y, z int) int { return 0 }).At(-1, 0, 0) },
		"bad length":   func() { FromSlice(2, make([]int, 7)) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("%s: expected panic", name)
				}
			}()
			fn()
		}()
	}
}
