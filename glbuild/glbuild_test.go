package glbuild_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glbuild"
	"github.com/soypat/geometry/ms3"
)

func TestAppendFloat(t *testing.T) {
	for _, test := range []struct {
		v    float32
		neg  byte
		dec  byte
		want string
	}{
		{v: 1.5, neg: '-', dec: '.', want: "1.5"},
		{v: 2, neg: '-', dec: '.', want: "2.0"},
		{v: -0.25, neg: '-', dec: '.', want: "-0.25"},
		{v: -0.25, neg: 'n', dec: 'p', want: "n0p25"},
		{v: 0, neg: 'n', dec: 'p', want: "0p0"},
	} {
		got := string(glbuild.AppendFloat(nil, test.neg, test.dec, test.v))
		if got != test.want {
			t.Errorf("AppendFloat(%v) = %q, want %q", test.v, got, test.want)
		}
	}
}

func TestAppendVec3(t *testing.T) {
	got := string(glbuild.AppendVec3(nil, ms3.Vec{X: 1, Y: -2.5, Z: 0.125}))
	const want = "vec3(1.0,-2.5,0.125)"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestAppendDEShader(t *testing.T) {
	var bld cantucci.Builder
	shapes := []glbuild.Shader3D{
		bld.NewSphere(ms3.Vec{X: 1}, 0.5),
		bld.NewClassicMandelbulb(8, 4),
		bld.NewMandelbulb(3, 10, 2),
	}
	for _, s := range shapes {
		if err := glbuild.ValidateShaderName(s); err != nil {
			t.Fatal(err)
		}
		src := string(glbuild.AppendDEShader(nil, s))
		name := string(s.AppendShaderName(nil))
		decl := "float " + name + "(vec3 p)"
		if n := strings.Count(src, decl); n != 1 {
			t.Errorf("%s: want one declaration, got %d\n%s", name, n, src)
		}
		entry := "float " + glbuild.DEFuncName + "(vec3 p) { return " + name + "(p); }"
		if !strings.Contains(src, entry) {
			t.Errorf("%s: missing entrypoint\n%s", name, src)
		}
	}
}

func TestAppendDEShaderPrefix(t *testing.T) {
	var bld cantucci.Builder
	s := bld.NewSphere(ms3.Vec{}, 1)
	prefix := []byte(glbuild.VersionStr)
	src := glbuild.AppendDEShader(prefix, s)
	if !bytes.HasPrefix(src, []byte(glbuild.VersionStr)) {
		t.Fatal("prefix overwritten")
	}
	if !bytes.Contains(src, []byte("return sphere")) {
		t.Errorf("entrypoint does not call sphere shader:\n%s", src)
	}
}

func TestWriteShaderToyVisualizer(t *testing.T) {
	var bld cantucci.Builder
	s := bld.NewClassicMandelbulb(10, 2)
	var buf bytes.Buffer
	n, err := glbuild.WriteShaderToyVisualizer(&buf, s)
	if err != nil {
		t.Fatal(err)
	} else if n != buf.Len() {
		t.Fatal("written length mismatch")
	}
	src := buf.String()
	for _, want := range []string{"mainImage", "characteristicDistance", glbuild.DEFuncName} {
		if !strings.Contains(src, want) {
			t.Errorf("visualizer missing %q", want)
		}
	}
}
