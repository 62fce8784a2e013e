// Package onnx provides a small Go-native layer over ONNX Runtime.
//
// ONNX Runtime is a cross-platform inference engine for ONNX models. This
// package wraps github.com/yalue/onnxruntime_go, exposing the three types the
// rest of the module needs:
//
//   - [Env]: the process-wide runtime environment
//   - [Session]: a model loaded from an .onnx file on a chosen provider
//   - [Tensor]: an N-dimensional float32 or int64 tensor in Go memory
//
// Usage flow:
//
//	env, _ := onnx.NewEnv("kokoro", "")
//	defer env.Close()
//
//	session, _ := env.NewSession("kokoro-v0_19.onnx", &onnx.SessionOptions{})
//	defer session.Close()
//
//	tokens, _ := onnx.NewInt64Tensor([]int64{1, 4}, []int64{0, 50, 83, 0})
//	outputs, _ := session.Run([]string{"tokens"}, []*onnx.Tensor{tokens}, []string{"audio"})
//	audio, _ := outputs[0].FloatData()
//
// # Dynamic Linking
//
// The ONNX Runtime shared library is loaded at runtime. Its location is
// taken from the libraryPath argument of [NewEnv], or from the
// ONNXRUNTIME_SHARED_LIBRARY_PATH environment variable.
//
// # Thread Safety
//
// Env is safe for concurrent use. Session.Run is safe for concurrent use:
// each call builds its own runtime values and ONNX Runtime serializes
// access to shared session state internally.
package onnx

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// LibraryPathEnv names the environment variable consulted by [NewEnv] when
// no explicit library path is given.
const LibraryPathEnv = "ONNXRUNTIME_SHARED_LIBRARY_PATH"

// Sentinel errors.
var (
	// ErrProviderUnavailable is returned when an execution provider cannot
	// be attached to a session (missing CUDA libraries, no device, ...).
	ErrProviderUnavailable = errors.New("onnx: execution provider unavailable")

	// ErrInputNotFound is returned when Run is given an input the model
	// does not declare, or omits one it does.
	ErrInputNotFound = errors.New("onnx: input not found")

	// ErrOutputNotFound is returned when a requested output is not produced.
	ErrOutputNotFound = errors.New("onnx: output not found")

	// ErrClosed is returned when using a closed session.
	ErrClosed = errors.New("onnx: session closed")
)

// --------------------------------------------------------------------------
// Env
// --------------------------------------------------------------------------

var (
	envMu   sync.Mutex
	envRefs int
)

// Env is a handle on the ONNX Runtime environment. ONNX Runtime supports a
// single environment per process, so handles are reference counted: the
// environment is created by the first NewEnv and destroyed by the last Close.
type Env struct {
	name string
	once sync.Once
}

// NewEnv initializes the ONNX Runtime environment.
func NewEnv(name, libraryPath string) (*Env, error) {
	envMu.Lock()
	defer envMu.Unlock()

	if envRefs == 0 && !ort.IsInitialized() {
		if libraryPath == "" {
			libraryPath = os.Getenv(LibraryPathEnv)
		}
		if libraryPath != "" {
			ort.SetSharedLibraryPath(libraryPath)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("onnx: initialize environment: %w", err)
		}
	}
	envRefs++
	return &Env{name: name}, nil
}

// Name returns the name the environment handle was created with.
func (e *Env) Name() string {
	return e.name
}

// Close releases the handle. Closing twice is a no-op.
func (e *Env) Close() error {
	var err error
	e.once.Do(func() {
		envMu.Lock()
		defer envMu.Unlock()
		envRefs--
		if envRefs == 0 && ort.IsInitialized() {
			err = ort.DestroyEnvironment()
		}
	})
	return err
}

// --------------------------------------------------------------------------
// Session
// --------------------------------------------------------------------------

// Provider selects the execution provider a session runs on.
type Provider string

const (
	// ProviderCPU is the default CPU execution provider.
	ProviderCPU Provider = "cpu"
	// ProviderCUDA is the NVIDIA CUDA execution provider.
	ProviderCUDA Provider = "cuda"
)

// SessionOptions configures a [Session].
type SessionOptions struct {
	// Provider is the execution provider. Empty means ProviderCPU.
	Provider Provider

	// DeviceID is the accelerator ordinal for ProviderCUDA.
	DeviceID int

	// GPUMemoryLimit caps the CUDA arena in bytes. Zero means no limit.
	GPUMemoryLimit uint64

	// IntraOpThreads sets the intra-op thread pool size. Zero lets ONNX
	// Runtime decide.
	IntraOpThreads int
}

func (o *SessionOptions) provider() Provider {
	if o == nil || o.Provider == "" {
		return ProviderCPU
	}
	return o.Provider
}

// Session holds a loaded ONNX model.
type Session struct {
	mu       sync.RWMutex
	session  *ort.DynamicAdvancedSession
	inputs   []string
	outputs  []string
	provider Provider
}

// NewSession loads the model at modelPath. Every input and output the model
// declares is bound, so Run may request any of them by name.
func (e *Env) NewSession(modelPath string, opts *SessionOptions) (*Session, error) {
	if modelPath == "" {
		return nil, fmt.Errorf("onnx: empty model path")
	}

	inInfo, outInfo, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: read model info: %w", err)
	}
	inputs := make([]string, len(inInfo))
	for i, info := range inInfo {
		inputs[i] = info.Name
	}
	outputs := make([]string, len(outInfo))
	for i, info := range outInfo {
		outputs[i] = info.Name
	}

	so, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: session options: %w", err)
	}
	defer so.Destroy()

	if opts != nil && opts.IntraOpThreads > 0 {
		if err := so.SetIntraOpNumThreads(opts.IntraOpThreads); err != nil {
			return nil, fmt.Errorf("onnx: intra-op threads: %w", err)
		}
	}

	provider := opts.provider()
	switch provider {
	case ProviderCPU:
	case ProviderCUDA:
		cuda, err := ort.NewCUDAProviderOptions()
		if err != nil {
			return nil, fmt.Errorf("%w: cuda: %w", ErrProviderUnavailable, err)
		}
		defer cuda.Destroy()

		settings := map[string]string{"device_id": strconv.Itoa(opts.DeviceID)}
		if opts.GPUMemoryLimit > 0 {
			settings["gpu_mem_limit"] = strconv.FormatUint(opts.GPUMemoryLimit, 10)
		}
		if err := cuda.Update(settings); err != nil {
			return nil, fmt.Errorf("%w: cuda: %w", ErrProviderUnavailable, err)
		}
		if err := so.AppendExecutionProviderCUDA(cuda); err != nil {
			return nil, fmt.Errorf("%w: cuda: %w", ErrProviderUnavailable, err)
		}
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrProviderUnavailable, provider)
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputs, outputs, so)
	if err != nil {
		if provider != ProviderCPU {
			return nil, fmt.Errorf("%w: %s: %w", ErrProviderUnavailable, provider, err)
		}
		return nil, fmt.Errorf("onnx: create session: %w", err)
	}

	return &Session{
		session:  session,
		inputs:   inputs,
		outputs:  outputs,
		provider: provider,
	}, nil
}

// Inputs returns the input names declared by the model.
func (s *Session) Inputs() []string {
	return append([]string(nil), s.inputs...)
}

// Outputs returns the output names declared by the model.
func (s *Session) Outputs() []string {
	return append([]string(nil), s.outputs...)
}

// Provider returns the execution provider the session runs on.
func (s *Session) Provider() Provider {
	return s.provider
}

// Run executes inference with the given inputs and returns the requested
// outputs in the order of outputNames. Every model input must be supplied.
func (s *Session) Run(inputNames []string, inputs []*Tensor, outputNames []string) ([]*Tensor, error) {
	if len(inputNames) != len(inputs) {
		return nil, fmt.Errorf("onnx: input names/tensors length mismatch: %d vs %d", len(inputNames), len(inputs))
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil, ErrClosed
	}

	byName := make(map[string]*Tensor, len(inputs))
	for i, name := range inputNames {
		byName[name] = inputs[i]
	}
	if len(byName) != len(s.inputs) {
		return nil, fmt.Errorf("%w: model wants %v, got %v", ErrInputNotFound, s.inputs, inputNames)
	}

	values := make([]ort.Value, len(s.inputs))
	defer destroyAll(values)
	for i, name := range s.inputs {
		t, ok := byName[name]
		if !ok || t == nil {
			return nil, fmt.Errorf("%w: %q", ErrInputNotFound, name)
		}
		v, err := t.value()
		if err != nil {
			return nil, fmt.Errorf("onnx: input %q: %w", name, err)
		}
		values[i] = v
	}

	results := make([]ort.Value, len(s.outputs))
	defer destroyAll(results)
	if err := s.session.Run(values, results); err != nil {
		return nil, fmt.Errorf("onnx: run: %w", err)
	}

	out := make([]*Tensor, len(outputNames))
	for i, name := range outputNames {
		idx := indexOf(s.outputs, name)
		if idx < 0 || results[idx] == nil {
			return nil, fmt.Errorf("%w: %q", ErrOutputNotFound, name)
		}
		t, err := fromValue(results[idx])
		if err != nil {
			return nil, fmt.Errorf("onnx: output %q: %w", name, err)
		}
		out[i] = t
	}
	return out, nil
}

// Close releases the session. Closing twice is a no-op.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return nil
	}
	err := s.session.Destroy()
	s.session = nil
	return err
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func destroyAll(values []ort.Value) {
	for _, v := range values {
		if v != nil {
			v.Destroy()
		}
	}
}
