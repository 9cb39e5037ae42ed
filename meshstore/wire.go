package meshstore

import (
	"errors"
	"math"

	"github.com/soypat/cantucci/glrender"
	"github.com/soypat/geometry/ms3"
	"google.golang.org/protobuf/encoding/protowire"
)

// Mesh wire format, compatible with the protobuf message:
//
//	message Mesh {
//	  uint64 num_vertices = 1;
//	  repeated fixed32 vertices = 2; // 7 float32 per vertex: position, normal, distance.
//	  repeated uint32 indices = 3;
//	}
const (
	fieldNumVertices protowire.Number = 1
	fieldVertices    protowire.Number = 2
	fieldIndices     protowire.Number = 3

	floatsPerVertex = 7
)

var errBadMesh = errors.New("malformed mesh data")

func appendMesh(b []byte, buf glrender.Buffer) ([]byte, error) {
	if len(buf.Indices)%3 != 0 {
		return b, errors.New("index count not a multiple of 3")
	}
	b = protowire.AppendTag(b, fieldNumVertices, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(len(buf.Vertices)))
	if len(buf.Vertices) > 0 {
		b = protowire.AppendTag(b, fieldVertices, protowire.BytesType)
		b = protowire.AppendVarint(b, uint64(4*floatsPerVertex*len(buf.Vertices)))
		for _, v := range buf.Vertices {
			b = appendVec(b, v.Position)
			b = appendVec(b, v.Normal)
			b = protowire.AppendFixed32(b, math.Float32bits(v.DistanceFromSurface))
		}
	}
	if len(buf.Indices) > 0 {
		var packed []byte
		for _, idx := range buf.Indices {
			packed = protowire.AppendVarint(packed, uint64(idx))
		}
		b = protowire.AppendTag(b, fieldIndices, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}
	return b, nil
}

func appendVec(b []byte, v ms3.Vec) []byte {
	b = protowire.AppendFixed32(b, math.Float32bits(v.X))
	b = protowire.AppendFixed32(b, math.Float32bits(v.Y))
	return protowire.AppendFixed32(b, math.Float32bits(v.Z))
}

func consumeMesh(b []byte) (buf glrender.Buffer, err error) {
	numVertices := -1
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return buf, protowire.ParseError(n)
		}
		b = b[n:]
		switch {
		case num == fieldNumVertices && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return buf, protowire.ParseError(n)
			}
			numVertices = int(v)
			b = b[n:]
		case num == fieldVertices && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return buf, protowire.ParseError(n)
			}
			b = b[n:]
			buf.Vertices, err = consumeVertices(buf.Vertices, packed)
			if err != nil {
				return buf, err
			}
		case num == fieldIndices && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return buf, protowire.ParseError(n)
			}
			b = b[n:]
			for len(packed) > 0 {
				v, n := protowire.ConsumeVarint(packed)
				if n < 0 {
					return buf, protowire.ParseError(n)
				}
				if v > math.MaxUint32 {
					return buf, errBadMesh
				}
				buf.Indices = append(buf.Indices, uint32(v))
				packed = packed[n:]
			}
		default:
			// Unknown fields are skipped.
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return buf, protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	if numVertices != len(buf.Vertices) || len(buf.Indices)%3 != 0 {
		return glrender.Buffer{}, errBadMesh
	}
	for _, idx := range buf.Indices {
		if int(idx) >= len(buf.Vertices) {
			return glrender.Buffer{}, errBadMesh
		}
	}
	return buf, nil
}

func consumeVertices(dst []glrender.Vertex, packed []byte) ([]glrender.Vertex, error) {
	if len(packed)%(4*floatsPerVertex) != 0 {
		return dst, errBadMesh
	}
	var f [floatsPerVertex]float32
	for len(packed) > 0 {
		for i := range f {
			v, n := protowire.ConsumeFixed32(packed)
			if n < 0 {
				return dst, protowire.ParseError(n)
			}
			f[i] = math.Float32frombits(v)
			packed = packed[n:]
		}
		dst = append(dst, glrender.Vertex{
			Position:            ms3.Vec{X: f[0], Y: f[1], Z: f[2]},
			Normal:              ms3.Vec{X: f[3], Y: f[4], Z: f[5]},
			DistanceFromSurface: f[6],
		})
	}
	return dst, nil
}
