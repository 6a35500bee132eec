package vision

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

type ONNXOptions struct {
	Path          string
	SharedLibPath string
	Width         int
	Height        int
	// IntraOpThreads <= 0 keeps the runtime default.
	IntraOpThreads int
}

// ONNXModel owns an ONNX Runtime session for a binary classifier with one
// float input image and one sigmoid output. The session is never mutated after
// load; each Forward call allocates its own tensors, so calls may overlap.
type ONNXModel struct {
	session     *ort.DynamicAdvancedSession
	inputShape  ort.Shape
	outputShape ort.Shape
	layout      Layout
	digest      string
}

// LoadONNXModel initializes the runtime environment, inspects the graph and
// opens a session. Close must be called to release it. On failure an
// environment initialized by this call is destroyed again.
func LoadONNXModel(opts ONNXOptions) (_ *ONNXModel, err error) {
	digest, err := fileDigest(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("read model: %w", err)
	}

	if !ort.IsInitialized() {
		if opts.SharedLibPath != "" {
			ort.SetSharedLibraryPath(opts.SharedLibPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx init environment: %w", err)
		}
		defer func() {
			if err != nil {
				_ = ort.DestroyEnvironment()
			}
		}()
	}

	inputs, outputs, err := ort.GetInputOutputInfo(opts.Path)
	if err != nil {
		return nil, fmt.Errorf("onnx get input/output info: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("onnx model must have one input and one output, got %d and %d", len(inputs), len(outputs))
	}
	if inputs[0].DataType != ort.TensorElementDataTypeFloat {
		return nil, fmt.Errorf("onnx input %q is %v, want float", inputs[0].Name, inputs[0].DataType)
	}

	layout, inputShape, err := resolveInputShape(inputs[0].Dimensions, opts.Width, opts.Height)
	if err != nil {
		return nil, fmt.Errorf("onnx input %q: %w", inputs[0].Name, err)
	}
	outputShape, err := resolveOutputShape(outputs[0].Dimensions)
	if err != nil {
		return nil, fmt.Errorf("onnx output %q: %w", outputs[0].Name, err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx session options: %w", err)
	}
	defer options.Destroy()
	if opts.IntraOpThreads > 0 {
		if err := options.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx set intra-op threads: %w", err)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(opts.Path,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, options)
	if err != nil {
		return nil, fmt.Errorf("onnx new session: %w", err)
	}

	return &ONNXModel{
		session:     session,
		inputShape:  inputShape,
		outputShape: outputShape,
		layout:      layout,
		digest:      digest,
	}, nil
}

func (m *ONNXModel) Layout() Layout { return m.layout }

// Digest is the hex SHA-256 of the model artifact.
func (m *ONNXModel) Digest() string { return m.digest }

func (m *ONNXModel) Forward(input []float32) (float32, error) {
	if want := m.inputShape.FlattenedSize(); int64(len(input)) != want {
		return 0, fmt.Errorf("input has %d values, model expects %d", len(input), want)
	}

	in, err := ort.NewTensor(m.inputShape, input)
	if err != nil {
		return 0, fmt.Errorf("onnx new input tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](m.outputShape)
	if err != nil {
		return 0, fmt.Errorf("onnx new output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return 0, fmt.Errorf("onnx run: %w", err)
	}
	return out.GetData()[0], nil
}

func (m *ONNXModel) Close() error {
	var closeErr error
	if m.session != nil {
		closeErr = m.session.Destroy()
		m.session = nil
	}
	if ort.IsInitialized() {
		if err := ort.DestroyEnvironment(); err != nil && closeErr == nil {
			closeErr = err
		}
	}
	return closeErr
}

// resolveInputShape works out the tensor layout from the declared dimensions
// and pins the batch to 1. Symbolic dimensions (<= 0) take the configured size.
func resolveInputShape(dims ort.Shape, width, height int) (Layout, ort.Shape, error) {
	if len(dims) != 4 {
		return 0, nil, fmt.Errorf("want a rank 4 image tensor, got shape %v", dims)
	}

	var layout Layout
	var h, w int64
	switch {
	case dims[3] == 3:
		layout, h, w = NHWC, dims[1], dims[2]
	case dims[1] == 3:
		layout, h, w = NCHW, dims[2], dims[3]
	default:
		return 0, nil, fmt.Errorf("no 3-channel axis in shape %v", dims)
	}
	if (h > 0 && h != int64(height)) || (w > 0 && w != int64(width)) {
		return 0, nil, fmt.Errorf("model expects %dx%d images, configured %dx%d", w, h, width, height)
	}

	if layout == NCHW {
		return layout, ort.NewShape(1, 3, int64(height), int64(width)), nil
	}
	return layout, ort.NewShape(1, int64(height), int64(width), 3), nil
}

// resolveOutputShape requires exactly one value per batch item.
func resolveOutputShape(dims ort.Shape) (ort.Shape, error) {
	if len(dims) == 0 {
		return nil, fmt.Errorf("output has no dimensions")
	}
	shape := make(ort.Shape, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	if shape.FlattenedSize() != 1 {
		return nil, fmt.Errorf("want a single probability per image, got shape %v", dims)
	}
	return shape, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
