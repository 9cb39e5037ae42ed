package glrender

import (
	"encoding/binary"
	"errors"
	"io"
	"math"

	"github.com/soypat/geometry/ms3"
)

const (
	stlHeaderSize   = 80
	stlTriangleSize = 50
)

// WriteBinarySTL writes triangles to w in binary STL format.
// Facet normals are computed from the triangle winding.
func WriteBinarySTL(w io.Writer, triangles []ms3.Triangle) (int, error) {
	if uint64(len(triangles)) > math.MaxUint32 {
		return 0, errors.New("too many triangles for STL")
	}
	var header [stlHeaderSize + 4]byte
	copy(header[:], "binary STL generated by cantucci")
	binary.LittleEndian.PutUint32(header[stlHeaderSize:], uint32(len(triangles)))
	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	const batch = 256
	buf := make([]byte, 0, batch*stlTriangleSize)
	for len(triangles) > 0 {
		nt := min(batch, len(triangles))
		buf = buf[:0]
		for _, t := range triangles[:nt] {
			buf = appendSTLTriangle(buf, t)
		}
		ngot, err := w.Write(buf)
		n += ngot
		if err != nil {
			return n, err
		}
		triangles = triangles[nt:]
	}
	return n, nil
}

// appendSTLTriangle writes a zero normal for degenerate triangles.
func appendSTLTriangle(b []byte, t ms3.Triangle) []byte {
	normal, _ := unitOK(ms3.Cross(ms3.Sub(t[1], t[0]), ms3.Sub(t[2], t[0])))
	b = appendSTLVec(b, normal)
	for _, v := range t {
		b = appendSTLVec(b, v)
	}
	return append(b, 0, 0) // Attribute byte count.
}

func appendSTLVec(b []byte, v ms3.Vec) []byte {
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v.X))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v.Y))
	b = binary.LittleEndian.AppendUint32(b, math.Float32bits(v.Z))
	return b
}
