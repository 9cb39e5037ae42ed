//go:build !tinygo && cgo

package cantucciaux

import (
	"fmt"
	"time"

	"github.com/go-gl/gl/v4.6-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/soypat/cantucci"
	"github.com/soypat/cantucci/glview"
	"github.com/soypat/cantucci/shapemesh"
	"github.com/soypat/geometry/ms3"
	"github.com/soypat/glgl/v4.6-core/glgl"
)

const windowTitle = "Cantucci ◕ ◡ ◕"

func ui(s cantucci.Shape, cfg UIConfig) error {
	window, term, err := startGLFW(cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer term()
	prog, err := glgl.CompileProgram(glgl.ShaderSource{
		Vertex:   meshVertexShader,
		Fragment: meshFragmentShader,
	})
	if err != nil {
		return err
	}
	defer prog.Delete()
	prog.Bind()
	mvpUniform, err := prog.UniformLocation("uMVP\x00")
	if err != nil {
		return err
	}
	eyeUniform, err := prog.UniformLocation("uEye\x00")
	if err != nil {
		return err
	}
	builder, err := glview.NewGPUBuilder()
	if err != nil {
		return err
	}
	// Views are released on Close which must run while the GL context is alive.
	coord, err := shapemesh.NewCoordinator(s, s.Bounds(), builder, shapemesh.Config{
		Resolution:  cfg.Resolution,
		MaxDepth:    cfg.MaxDepth,
		Workers:     cfg.Workers,
		SplitFactor: cfg.SplitFactor,
		Cache:       cfg.Cache,
	})
	if err != nil {
		return err
	}
	defer coord.Close()

	cam := NewOrbitCamera(s.Bounds())
	var (
		lastMouseX, lastMouseY float64
		firstMouseMove         = true
		isMousePressed         = false
		sensitivity            = float32(0.005)
	)
	window.SetCursorPosCallback(func(w *glfw.Window, xpos, ypos float64) {
		if !isMousePressed {
			return
		}
		if firstMouseMove {
			lastMouseX = xpos
			lastMouseY = ypos
			firstMouseMove = false
		}
		dx := float32(xpos - lastMouseX)
		dy := float32(ypos - lastMouseY)
		cam.Rotate(-dy*sensitivity, -dx*sensitivity)
		lastMouseX = xpos
		lastMouseY = ypos
	})
	window.SetScrollCallback(func(w *glfw.Window, xoff, yoff float64) {
		cam.Zoom(float32(yoff))
	})
	window.SetMouseButtonCallback(func(w *glfw.Window, button glfw.MouseButton, action glfw.Action, mods glfw.ModifierKey) {
		if button != glfw.MouseButtonLeft {
			return
		}
		switch action {
		case glfw.Press:
			isMousePressed = true
			firstMouseMove = true
			window.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
		case glfw.Release:
			isMousePressed = false
			window.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
		}
	})

	gl.Enable(gl.DEPTH_TEST)
	gl.Enable(gl.CULL_FACE)
	fps := NewFPSTimer(time.Now())
	ctx := cfg.Context
	for !window.ShouldClose() {
		if ctx != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
		}
		err = coord.Update(cam.Focus())
		if err != nil {
			return err
		}
		width, height := window.GetFramebufferSize()
		gl.Viewport(0, 0, int32(width), int32(height))
		gl.ClearColor(0.05, 0.05, 0.08, 1.0)
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

		prog.Bind()
		mvp := cam.Projection(float32(width) / float32(max(height, 1))).Mul4(cam.View())
		gl.UniformMatrix4fv(mvpUniform, 1, false, &mvp[0])
		eye := cam.Position()
		gl.Uniform3f(eyeUniform, eye[0], eye[1], eye[2])
		coord.ForEachView(func(v shapemesh.View, span ms3.Box) {
			if gv, ok := v.(*glview.GPUView); ok {
				gv.Draw()
			}
		})
		window.SwapBuffers()
		glfw.PollEvents()

		fps.RegisterFrame()
		if f, ok := fps.ReportFPS(time.Now()); ok {
			empty, requested, ready := coord.Index().Count()
			window.SetTitle(fmt.Sprintf("%s (%.1f fps, %d/%d leaves ready)", windowTitle, f, ready, empty+requested+ready))
		}
	}
	return nil
}

const meshVertexShader = `#version 460
layout(location = 0) in vec3 aPos;
layout(location = 1) in vec3 aNormal;
layout(location = 2) in float aDist;
uniform mat4 uMVP;
out vec3 vPos;
out vec3 vNormal;
void main() {
    vPos = aPos;
    vNormal = aNormal;
    gl_Position = uMVP * vec4(aPos, 1.0);
}
` + "\x00"

const meshFragmentShader = `#version 460
in vec3 vPos;
in vec3 vNormal;
out vec4 fragColor;
uniform vec3 uEye;
void main() {
    vec3 nor = normalize(vNormal);
    vec3 toEye = normalize(uEye - vPos);
    float dif = clamp(dot(nor, toEye), 0.0, 1.0);
    float amb = 0.5 + 0.5 * dot(nor, vec3(0.0, 0.0, 1.0));
    vec3 col = vec3(0.2, 0.3, 0.4) * amb + vec3(0.8, 0.7, 0.5) * dif;
    fragColor = vec4(sqrt(col), 1.0);
}
` + "\x00"

func startGLFW(width, height int) (window *glfw.Window, term func(), err error) {
	if err := glfw.Init(); err != nil {
		return nil, nil, fmt.Errorf("initializing GLFW: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 6)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.Resizable, glfw.True)

	window, err = glfw.CreateWindow(width, height, windowTitle, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("creating GLFW window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		glfw.Terminate()
		return nil, nil, fmt.Errorf("initializing OpenGL: %w", err)
	}
	return window, glfw.Terminate, nil
}
