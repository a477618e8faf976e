// Package inference runs a pretrained token encoder exported to ONNX and
// exposes it as the token encoder of the sentence model.
package inference

import (
	"context"
	"fmt"
	"os"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	ortEnvOnce sync.Once
	ortEnvErr  error
)

// initORT initializes ONNX Runtime environment once.
func initORT() error {
	ortEnvOnce.Do(func() {
		ortEnvErr = ort.InitializeEnvironment()
	})
	return ortEnvErr
}

// Names lists the graph inputs and output of an encoder export.
type Names struct {
	InputIDs      string
	TokenTypeIDs  string // empty when the graph has no segment input
	AttentionMask string
	Hidden        string
}

// DefaultNames matches the HuggingFace feature-extraction export.
func DefaultNames() Names {
	return Names{
		InputIDs:      "input_ids",
		TokenTypeIDs:  "token_type_ids",
		AttentionMask: "attention_mask",
		Hidden:        "last_hidden_state",
	}
}

func (n Names) inputs() []string {
	if n.TokenTypeIDs == "" {
		return []string{n.InputIDs, n.AttentionMask}
	}
	return []string{n.InputIDs, n.TokenTypeIDs, n.AttentionMask}
}

// Option configures a Session or Pool.
type Option func(*Names)

// WithNames overrides the graph input and output names.
func WithNames(n Names) Option {
	return func(dst *Names) { *dst = n }
}

// WithoutTokenTypes drops the token_type_ids input, as RoBERTa exports do.
func WithoutTokenTypes() Option {
	return func(dst *Names) { dst.TokenTypeIDs = "" }
}

// Input is a padded batch of token ids. MaskShape is [B, T] for a key
// padding mask or [B, 1, T, T] for a pairwise mask.
type Input struct {
	Batch, SeqLen int64
	InputIDs      []int64
	TokenTypeIDs  []int64
	AttentionMask []int64
	MaskShape     []int64
}

func (in Input) validate() error {
	n := in.Batch * in.SeqLen
	if in.Batch <= 0 || in.SeqLen <= 0 {
		return fmt.Errorf("%w: batch %d x %d", ErrShape, in.Batch, in.SeqLen)
	}
	if int64(len(in.InputIDs)) != n {
		return fmt.Errorf("%w: %d input ids for %d positions", ErrShape, len(in.InputIDs), n)
	}
	if in.TokenTypeIDs != nil && int64(len(in.TokenTypeIDs)) != n {
		return fmt.Errorf("%w: %d token types for %d positions", ErrShape, len(in.TokenTypeIDs), n)
	}
	size := int64(1)
	for _, d := range in.MaskShape {
		size *= d
	}
	if len(in.MaskShape) == 0 || in.MaskShape[0] != in.Batch || int64(len(in.AttentionMask)) != size {
		return fmt.Errorf("%w: attention mask %v with %d values", ErrShape, in.MaskShape, len(in.AttentionMask))
	}
	return nil
}

// Output holds the final hidden states, flattened with Shape [B, T, H].
type Output struct {
	Hidden []float32
	Shape  []int64
}

// Session wraps an ONNX Runtime session of the token encoder.
type Session struct {
	session *ort.DynamicAdvancedSession
	names   Names
	mu      sync.Mutex
	closed  bool
}

// NewSession creates a new ONNX session from a model file.
func NewSession(modelPath string, opts ...Option) (*Session, error) {
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("model file: %w", err)
	}

	names := DefaultNames()
	for _, opt := range opts {
		opt(&names)
	}

	if err := initORT(); err != nil {
		return nil, fmt.Errorf("initializing ONNX runtime: %w", err)
	}

	options, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("creating session options: %w", err)
	}
	defer func() { _ = options.Destroy() }() // Cleanup error doesn't affect success

	session, err := ort.NewDynamicAdvancedSession(
		modelPath,
		names.inputs(),
		[]string{names.Hidden},
		options,
	)
	if err != nil {
		return nil, fmt.Errorf("creating session: %w", err)
	}

	return &Session{session: session, names: names}, nil
}

// Infer runs the encoder on a batch and returns its final hidden states.
func (s *Session) Infer(ctx context.Context, in Input) (Output, error) {
	select {
	case <-ctx.Done():
		return Output{}, ctx.Err()
	default:
	}

	if err := in.validate(); err != nil {
		return Output{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Output{}, ErrSessionClosed
	}

	shape := ort.NewShape(in.Batch, in.SeqLen)
	var inputs []ort.Value

	idsTensor, err := ort.NewTensor(shape, in.InputIDs)
	if err != nil {
		return Output{}, fmt.Errorf("creating %s tensor: %w", s.names.InputIDs, err)
	}
	defer func() { _ = idsTensor.Destroy() }()
	inputs = append(inputs, idsTensor)

	if s.names.TokenTypeIDs != "" {
		types := in.TokenTypeIDs
		if types == nil {
			types = make([]int64, len(in.InputIDs))
		}
		typesTensor, err := ort.NewTensor(shape, types)
		if err != nil {
			return Output{}, fmt.Errorf("creating %s tensor: %w", s.names.TokenTypeIDs, err)
		}
		defer func() { _ = typesTensor.Destroy() }()
		inputs = append(inputs, typesTensor)
	}

	maskTensor, err := ort.NewTensor(ort.NewShape(in.MaskShape...), in.AttentionMask)
	if err != nil {
		return Output{}, fmt.Errorf("creating %s tensor: %w", s.names.AttentionMask, err)
	}
	defer func() { _ = maskTensor.Destroy() }()
	inputs = append(inputs, maskTensor)

	// nil entries are allocated by Run
	outputs := []ort.Value{nil}
	if err := s.session.Run(inputs, outputs); err != nil {
		return Output{}, fmt.Errorf("running inference: %w", err)
	}

	if outputs[0] == nil {
		return Output{}, fmt.Errorf("no output produced")
	}
	defer func() { _ = outputs[0].Destroy() }()

	hidden, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return Output{}, fmt.Errorf("unexpected output tensor type")
	}

	data := hidden.GetData()
	out := Output{
		Hidden: make([]float32, len(data)),
		Shape:  []int64(hidden.GetShape().Clone()),
	}
	copy(out.Hidden, data)
	return out, nil
}

// Close releases ONNX resources.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	s.closed = true
	if s.session != nil {
		return s.session.Destroy()
	}
	return nil
}
