package kokoro

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/haivivi/kokoro/pkg/onnx"
)

// Model input and output names.
const (
	InputTokens = "tokens"
	InputStyle  = "style"
	InputSpeed  = "speed"
	OutputAudio = "audio"
)

// DefaultSpeed is the speed scalar fed to the model.
const DefaultSpeed float32 = 1.0

// Device is the execution path a session runs on.
type Device string

const (
	// DeviceDefault is the CPU path.
	DeviceDefault Device = "default"
	// DeviceAccelerator is the GPU path.
	DeviceAccelerator Device = "accelerator"
)

// DeviceConfig selects the device a session is loaded on.
type DeviceConfig struct {
	// UseAccelerator requests the accelerated path.
	UseAccelerator bool `yaml:"use_accelerator" json:"use_accelerator"`

	// AcceleratorMemoryLimit caps accelerator memory in bytes. Zero means
	// no limit.
	AcceleratorMemoryLimit uint64 `yaml:"accelerator_memory_limit" json:"accelerator_memory_limit"`

	// FallbackToDefault allows loading on the default path when the
	// accelerated path cannot be initialized.
	FallbackToDefault bool `yaml:"fallback_to_default" json:"fallback_to_default"`
}

// Runner executes a loaded model. *onnx.Session implements it.
type Runner interface {
	Run(inputNames []string, inputs []*onnx.Tensor, outputNames []string) ([]*onnx.Tensor, error)
	Inputs() []string
	Outputs() []string
	Close() error
}

// Backend opens models on a device.
type Backend interface {
	Open(modelPath string, dev Device, memoryLimit uint64) (Runner, error)
}

// ORTBackend opens models with ONNX Runtime. The accelerated path is the
// CUDA execution provider.
type ORTBackend struct {
	Env            *onnx.Env
	IntraOpThreads int
}

// Open implements Backend.
func (b *ORTBackend) Open(modelPath string, dev Device, memoryLimit uint64) (Runner, error) {
	opts := &onnx.SessionOptions{
		Provider:       onnx.ProviderCPU,
		IntraOpThreads: b.IntraOpThreads,
	}
	if dev == DeviceAccelerator {
		opts.Provider = onnx.ProviderCUDA
		opts.GPUMemoryLimit = memoryLimit
	}
	return b.Env.NewSession(modelPath, opts)
}

// InferenceRequest is one batch of model input. Tokens is [batch, seq_len]
// and Styles is [batch, StyleDim]. A zero Speed means DefaultSpeed.
type InferenceRequest struct {
	Tokens [][]int64
	Styles [][]float32
	Speed  float32
}

// AudioTensor is the raw audio output of the model.
type AudioTensor struct {
	Shape []int64
	Data  []float32
}

// Session is a model loaded on a device. It is safe for concurrent use;
// every Infer call builds its own tensors.
type Session struct {
	mu     sync.RWMutex
	runner Runner
	device Device
	path   string
}

// Load opens the model at modelPath according to cfg.
//
// With UseAccelerator the accelerated path is tried once. If it fails the
// default path is used when FallbackToDefault is set; otherwise Load
// returns ErrAcceleratorInit.
func Load(backend Backend, modelPath string, cfg DeviceConfig) (*Session, error) {
	if backend == nil {
		return nil, fmt.Errorf("%w: no inference backend", ErrLoad)
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("%w: model %s: %w (download kokoro-v0_19.onnx to this path)", ErrLoad, modelPath, err)
	}

	if cfg.UseAccelerator {
		r, err := backend.Open(modelPath, DeviceAccelerator, cfg.AcceleratorMemoryLimit)
		if err == nil {
			slog.Info("kokoro: model loaded", "model", modelPath, "device", DeviceAccelerator)
			return &Session{runner: r, device: DeviceAccelerator, path: modelPath}, nil
		}
		if !cfg.FallbackToDefault {
			return nil, fmt.Errorf("%w: %w", ErrAcceleratorInit, err)
		}
		slog.Warn("kokoro: accelerator unavailable, falling back to default device", "error", err)
	}

	r, err := backend.Open(modelPath, DeviceDefault, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: model %s: %w", ErrLoad, modelPath, err)
	}
	slog.Info("kokoro: model loaded", "model", modelPath, "device", DeviceDefault)
	return &Session{runner: r, device: DeviceDefault, path: modelPath}, nil
}

// Device returns the device the session runs on.
func (s *Session) Device() Device {
	return s.device
}

// ModelPath returns the path the model was loaded from.
func (s *Session) ModelPath() string {
	return s.path
}

// Inputs returns the model input names.
func (s *Session) Inputs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runner == nil {
		return nil
	}
	return s.runner.Inputs()
}

// Outputs returns the model output names.
func (s *Session) Outputs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runner == nil {
		return nil
	}
	return s.runner.Outputs()
}

// Close releases the model. Infer fails with ErrSessionNotReady afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runner == nil {
		return nil
	}
	err := s.runner.Close()
	s.runner = nil
	return err
}

type inferResult struct {
	out *AudioTensor
	err error
}

// Infer runs the model on req and returns its audio output.
//
// A ctx that has already ended never reaches the engine. The engine
// cannot be interrupted once started; when ctx ends first Infer returns
// ctx.Err() wrapped in ErrInference and the engine call completes in the
// background.
func (s *Session) Infer(ctx context.Context, req InferenceRequest) (*AudioTensor, error) {
	if s == nil {
		return nil, ErrSessionNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	tokens, style, speed, err := buildTensors(req)
	if err != nil {
		return nil, err
	}

	done := make(chan inferResult, 1)
	go func() {
		out, err := s.run(tokens, style, speed)
		done <- inferResult{out, err}
	}()

	select {
	case r := <-done:
		return r.out, r.err
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrInference, ctx.Err())
	}
}

func (s *Session) run(tokens, style, speed *onnx.Tensor) (*AudioTensor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.runner == nil {
		return nil, ErrSessionNotReady
	}

	outs, err := s.runner.Run(
		[]string{InputTokens, InputStyle, InputSpeed},
		[]*onnx.Tensor{tokens, style, speed},
		[]string{OutputAudio},
	)
	if errors.Is(err, onnx.ErrOutputNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrMissingOutput, err)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInference, err)
	}
	if len(outs) == 0 || outs[0] == nil {
		return nil, fmt.Errorf("%w: %q", ErrMissingOutput, OutputAudio)
	}

	data, err := outs[0].FloatData()
	if err != nil {
		return nil, fmt.Errorf("%w: output %q: %w", ErrInference, OutputAudio, err)
	}
	return &AudioTensor{Shape: outs[0].Shape(), Data: data}, nil
}

// buildTensors validates req and packs it into fresh tensors. Rows are
// never padded or truncated.
func buildTensors(req InferenceRequest) (tokens, style, speed *onnx.Tensor, err error) {
	batch := len(req.Tokens)
	if batch == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty token batch", ErrTensorShape)
	}
	if len(req.Styles) != batch {
		return nil, nil, nil, fmt.Errorf("%w: %d style rows for %d token rows", ErrTensorShape, len(req.Styles), batch)
	}
	seqLen := len(req.Tokens[0])
	if seqLen == 0 {
		return nil, nil, nil, fmt.Errorf("%w: empty token row", ErrTensorShape)
	}
	if seqLen > MaxTokens {
		return nil, nil, nil, fmt.Errorf("%w: %d tokens exceeds limit of %d", ErrTensorShape, seqLen, MaxTokens)
	}

	flatTokens := make([]int64, 0, batch*seqLen)
	for i, row := range req.Tokens {
		if len(row) != seqLen {
			return nil, nil, nil, fmt.Errorf("%w: token row %d has length %d, want %d", ErrTensorShape, i, len(row), seqLen)
		}
		for _, id := range row {
			if id < 0 || id >= VocabSize {
				return nil, nil, nil, fmt.Errorf("%w: token id %d outside vocabulary", ErrTensorShape, id)
			}
		}
		flatTokens = append(flatTokens, row...)
	}

	flatStyles := make([]float32, 0, batch*StyleDim)
	for i, row := range req.Styles {
		if len(row) != StyleDim {
			return nil, nil, nil, fmt.Errorf("%w: style row %d has length %d, want %d", ErrTensorShape, i, len(row), StyleDim)
		}
		flatStyles = append(flatStyles, row...)
	}

	s := req.Speed
	if s == 0 {
		s = DefaultSpeed
	}

	if tokens, err = onnx.NewInt64Tensor([]int64{int64(batch), int64(seqLen)}, flatTokens); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrTensorShape, err)
	}
	if style, err = onnx.NewTensor([]int64{int64(batch), StyleDim}, flatStyles); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrTensorShape, err)
	}
	if speed, err = onnx.NewTensor([]int64{1}, []float32{s}); err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %w", ErrTensorShape, err)
	}
	return tokens, style, speed, nil
}
