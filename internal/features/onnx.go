package features

import (
	"fmt"
	"image"
	"os"

	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"
)

// ONNXOptions describes a pretrained classification network exported to ONNX.
type ONNXOptions struct {
	ModelPath         string
	SharedLibraryPath string
	InputName         string
	OutputName        string
	InputSize         int
	Classes           int
	Layout            Layout
	Normalization     Normalization
	// Softmax is set when the model emits logits rather than probabilities.
	Softmax bool
}

// ONNXEmbedder runs a pretrained classifier and uses its full output
// distribution as a feature block. A session is safe for concurrent Run
// calls, so one embedder is shared by every worker.
type ONNXEmbedder struct {
	logger      zerolog.Logger
	opts        ONNXOptions
	inputShape  ort.Shape
	outputShape ort.Shape
	session     *ort.DynamicAdvancedSession
}

// NewONNXEmbedder loads the model and prepares a session.
func NewONNXEmbedder(logger zerolog.Logger, opts ONNXOptions) (*ONNXEmbedder, error) {
	if _, err := os.Stat(opts.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", opts.ModelPath)
	}

	if !ort.IsInitialized() {
		if opts.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(opts.SharedLibraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	sess, err := ort.NewDynamicAdvancedSession(
		opts.ModelPath,
		[]string{opts.InputName},
		[]string{opts.OutputName},
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding session: %w", err)
	}

	n := int64(opts.InputSize)
	inputShape := ort.NewShape(1, 3, n, n)
	if opts.Layout == NHWC {
		inputShape = ort.NewShape(1, n, n, 3)
	}

	logger.Info().
		Str("model", opts.ModelPath).
		Str("input", opts.InputName).
		Str("output", opts.OutputName).
		Str("layout", string(opts.Layout)).
		Int("classes", opts.Classes).
		Msg("embedding model loaded")

	return &ONNXEmbedder{
		logger:      logger.With().Str("component", "embedder").Logger(),
		opts:        opts,
		inputShape:  inputShape,
		outputShape: ort.NewShape(1, int64(opts.Classes)),
		session:     sess,
	}, nil
}

// Size is the number of output classes.
func (e *ONNXEmbedder) Size() int {
	return e.opts.Classes
}

// Embed runs one forward pass and returns the class probabilities.
func (e *ONNXEmbedder) Embed(img image.Image) ([]float64, error) {
	data := Preprocess(img, e.opts.InputSize, e.opts.Layout, e.opts.Normalization)

	input, err := ort.NewTensor(e.inputShape, data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer input.Destroy()

	output, err := ort.NewEmptyTensor[float32](e.outputShape)
	if err != nil {
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	defer output.Destroy()

	if err := e.session.Run([]ort.Value{input}, []ort.Value{output}); err != nil {
		return nil, fmt.Errorf("embedding inference failed: %w", err)
	}

	raw := output.GetData()
	if len(raw) != e.opts.Classes {
		return nil, fmt.Errorf("unexpected output size %d, want %d", len(raw), e.opts.Classes)
	}

	if e.opts.Softmax {
		return Softmax(raw), nil
	}
	probs := make([]float64, len(raw))
	for i, p := range raw {
		probs[i] = float64(p)
	}
	return probs, nil
}

// Close releases the session and the ONNX environment.
func (e *ONNXEmbedder) Close() error {
	e.logger.Debug().Msg("closing embedding session")
	if e.session != nil {
		if err := e.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
