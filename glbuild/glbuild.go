package glbuild

import (
	"bytes"
	"errors"
	"io"
	"strconv"

	"github.com/soypat/geometry/ms3"
)

const VersionStr = "#version 430\n"

// DEFuncName is the name of the distance estimator entrypoint written by [AppendDEShader].
const DEFuncName = "shape_de"

// decimalDigits is the amount of digits used when writing floats to shader source.
const decimalDigits = 9

// Shader3D creates the GLSL source of a distance estimator for a 3D shape.
type Shader3D interface {
	// AppendShaderName appends the name of the GL shader function
	// to the buffer and returns the result. It should be unique to that shader.
	AppendShaderName(b []byte) []byte
	// AppendShaderBody appends the body of the shader function to the
	// buffer and returns the result. The body receives a `vec3 p` argument
	// and must return a float distance.
	AppendShaderBody(b []byte) []byte
	// Bounds returns the bounding box where the distance estimator is negative.
	Bounds() ms3.Box
}

// AppendShaderSource appends the GL code of a single shader to the dst byte buffer.
// name and body byte slices pointing to the result buffer are also returned for convenience.
func AppendShaderSource(dst []byte, s Shader3D) (result, name, body []byte) {
	dst = append(dst, "float "...)
	nameStart := len(dst)
	dst = s.AppendShaderName(dst)
	nameEnd := len(dst)
	dst = append(dst, "(vec3 p){\n"...)
	bodyStart := len(dst)
	dst = s.AppendShaderBody(dst)
	bodyEnd := len(dst)
	dst = append(dst, "\n}\n"...)
	return dst, dst[nameStart:nameEnd], dst[bodyStart:bodyEnd]
}

// AppendDEShader appends the shader function of s followed by the
// distance estimator entrypoint:
//
//	float shape_de(vec3 p)
func AppendDEShader(dst []byte, s Shader3D) []byte {
	start := len(dst)
	dst, _, _ = AppendShaderSource(dst, s)
	nameStart := start + len("float ")
	nameEnd := nameStart + bytes.IndexByte(dst[nameStart:], '(')
	// Name may alias dst, copy before growing.
	name := append([]byte{}, dst[nameStart:nameEnd]...)
	dst = append(dst, "\nfloat "...)
	dst = append(dst, DEFuncName...)
	dst = append(dst, "(vec3 p) { return "...)
	dst = append(dst, name...)
	dst = append(dst, "(p); }\n"...)
	return dst
}

// ValidateShaderName checks the shader name of s is a valid GLSL identifier.
func ValidateShaderName(s Shader3D) error {
	name := s.AppendShaderName(nil)
	if len(name) == 0 {
		return errors.New("empty shader name")
	} else if name[0] >= '0' && name[0] <= '9' {
		return errors.New("shader name starts with digit")
	}
	for _, c := range name {
		isAlnum := c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' || c == '_'
		if !isAlnum {
			return errors.New("invalid character in shader name: " + strconv.Quote(string(name)))
		}
	}
	if bytes.Contains(name, []byte("__")) {
		return errors.New("shader name contains reserved double underscore")
	}
	return nil
}

// WriteShaderToyVisualizer generates a fragment program that ray marches the
// distance estimator of s. It can be visualized in most shader visualizers such as ShaderToy.
func WriteShaderToyVisualizer(w io.Writer, s Shader3D) (int, error) {
	if err := ValidateShaderName(s); err != nil {
		return 0, err
	}
	bb := s.Bounds()
	var buf []byte
	buf = AppendDEShader(buf, s)
	buf = AppendFloatDecl(buf, "const float characteristicDistance", ms3.Norm(bb.Size()))
	buf = append(buf, shaderToyVisualFooter...)
	return w.Write(buf)
}

// AppendFloat appends a float to the buffer. The neg and decimal arguments replace
// the minus sign and decimal point, respectively, which allows using floats in identifiers.
func AppendFloat(b []byte, neg, decimal byte, v float32) []byte {
	start := len(b)
	b = strconv.AppendFloat(b, float64(v), 'f', decimalDigits, 32)
	idx := bytes.IndexByte(b[start:], '.')
	if decimal != '.' && idx >= 0 {
		b[start+idx] = decimal
	}
	if b[start] == '-' {
		b[start] = neg
	}
	// Trim trailing zeroes.
	end := len(b)
	for i := len(b) - 1; idx >= 0 && i > idx+start+1 && b[i] == '0'; i-- {
		end--
	}
	return b[:end]
}

// AppendFloats appends floats separated by sep. A zero sep writes no separator.
func AppendFloats(b []byte, sep, neg, decimal byte, s ...float32) []byte {
	for i, v := range s {
		b = AppendFloat(b, neg, decimal, v)
		if sep != 0 && i != len(s)-1 {
			b = append(b, sep)
		}
	}
	return b
}

// AppendVec3 appends a vec3 literal such as `vec3(1.0,2.5,-3.0)`.
func AppendVec3(b []byte, v ms3.Vec) []byte {
	b = append(b, "vec3("...)
	b = AppendFloats(b, ',', '-', '.', v.X, v.Y, v.Z)
	b = append(b, ')')
	return b
}

func AppendVec3Decl(b []byte, vec3Varname string, v ms3.Vec) []byte {
	b = append(b, "vec3 "...)
	b = append(b, vec3Varname...)
	b = append(b, '=')
	b = AppendVec3(b, v)
	b = append(b, ';', '\n')
	return b
}

func AppendFloatDecl(b []byte, floatVarname string, v float32) []byte {
	b = append(b, "float "...)
	b = append(b, floatVarname...)
	b = append(b, '=')
	b = AppendFloat(b, '-', '.', v)
	b = append(b, ';', '\n')
	return b
}

func AppendIntDecl(b []byte, intVarname string, v int) []byte {
	b = append(b, "int "...)
	b = append(b, intVarname...)
	b = append(b, '=')
	b = strconv.AppendInt(b, int64(v), 10)
	b = append(b, ';', '\n')
	return b
}

const shaderToyVisualFooter = `
vec3 calcNormal(vec3 pos) {
	const float eps = 0.0001;
	vec2 e = vec2(1.0, -1.0) * 0.5773;
	return normalize(
		e.xyy * shape_de(pos + e.xyy * eps) +
		e.yyx * shape_de(pos + e.yyx * eps) +
		e.yxy * shape_de(pos + e.yxy * eps) +
		e.xxx * shape_de(pos + e.xxx * eps)
	);
}

void mainImage(out vec4 fragColor, in vec2 fragCoord) {
	const float PI = 3.14159265359;
	float yaw = 2.0 * PI * iMouse.x / iResolution.x;
	float pitch = clamp(PI * (iMouse.y / iResolution.y - 0.5), -PI/2.0 + 0.01, PI/2.0 - 0.01);
	vec3 ta = vec3(0.0);
	vec3 dir = vec3(cos(pitch)*sin(yaw), sin(pitch), cos(pitch)*cos(yaw));
	vec3 ro = ta - dir * characteristicDistance;
	vec3 ww = normalize(ta - ro);
	vec3 uu = normalize(cross(ww, vec3(0.0, 1.0, 0.0)));
	vec3 vv = cross(uu, ww);
	vec2 p = (2.0*fragCoord - iResolution.xy) / iResolution.y;
	vec3 rd = normalize(p.x*uu + p.y*vv + 1.5*ww);

	const float tol = 0.0001;
	float t = 0.0;
	bool hit = false;
	for (int i = 0; i < 256; i++) {
		float h = shape_de(ro + t*rd);
		if (h < tol || t > 2.0*characteristicDistance) {
			hit = h < tol;
			break;
		}
		t += h;
	}
	vec3 col = vec3(0.0);
	if (hit) {
		vec3 nor = calcNormal(ro + t*rd);
		float dif = clamp(dot(nor, vec3(0.57703)), 0.0, 1.0);
		float amb = 0.5 + 0.5*dot(nor, vec3(0.0, 1.0, 0.0));
		col = sqrt(vec3(0.2, 0.3, 0.4)*amb + vec3(0.8, 0.7, 0.5)*dif);
	}
	fragColor = vec4(col, 1.0);
}
`
