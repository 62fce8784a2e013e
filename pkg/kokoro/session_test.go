package kokoro

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/kokoro/pkg/onnx"
)

func TestLoad_DefaultDevice(t *testing.T) {
	backend := &fakeBackend{}
	s, err := Load(backend, writeModel(t), DeviceConfig{})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DeviceDefault, s.Device())
	assert.Equal(t, []Device{DeviceDefault}, backend.opened)
	assert.Equal(t, []string{InputTokens, InputStyle, InputSpeed}, s.Inputs())
	assert.Equal(t, []string{OutputAudio}, s.Outputs())
}

func TestLoad_Accelerator(t *testing.T) {
	backend := &fakeBackend{}
	s, err := Load(backend, writeModel(t), DeviceConfig{UseAccelerator: true, AcceleratorMemoryLimit: 4 << 30})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DeviceAccelerator, s.Device())
	assert.Equal(t, []Device{DeviceAccelerator}, backend.opened)
	assert.Equal(t, []uint64{4 << 30}, backend.limits)
}

func TestLoad_AcceleratorFailsWithoutFallback(t *testing.T) {
	backend := &fakeBackend{failAccel: true}
	s, err := Load(backend, writeModel(t), DeviceConfig{UseAccelerator: true, FallbackToDefault: false})

	assert.Nil(t, s)
	assert.ErrorIs(t, err, ErrAcceleratorInit)
	assert.ErrorIs(t, err, errNoDevice)
	assert.Equal(t, []Device{DeviceAccelerator}, backend.opened, "must not silently run on the default device")
}

func TestLoad_AcceleratorFallsBack(t *testing.T) {
	backend := &fakeBackend{failAccel: true}
	s, err := Load(backend, writeModel(t), DeviceConfig{UseAccelerator: true, FallbackToDefault: true})
	require.NoError(t, err)
	defer s.Close()

	assert.Equal(t, DeviceDefault, s.Device())
	assert.Equal(t, []Device{DeviceAccelerator, DeviceDefault}, backend.opened)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(&fakeBackend{}, filepath.Join(t.TempDir(), "missing.onnx"), DeviceConfig{})
	assert.ErrorIs(t, err, ErrLoad)

	_, err = Load(nil, writeModel(t), DeviceConfig{})
	assert.ErrorIs(t, err, ErrLoad)

	_, err = Load(&fakeBackend{failDefault: true}, writeModel(t), DeviceConfig{})
	assert.ErrorIs(t, err, ErrLoad)

	_, err = Load(&fakeBackend{failAccel: true, failDefault: true}, writeModel(t), DeviceConfig{UseAccelerator: true, FallbackToDefault: true})
	assert.ErrorIs(t, err, ErrLoad)
}

func request(tokens ...[]int64) InferenceRequest {
	styles := make([][]float32, len(tokens))
	for i := range styles {
		styles[i] = make([]float32, StyleDim)
	}
	return InferenceRequest{Tokens: tokens, Styles: styles, Speed: DefaultSpeed}
}

func TestInfer_BuildsTensors(t *testing.T) {
	var gotNames []string
	var gotShapes [][]int64
	var gotSpeed []float32
	r := &fakeRunner{run: func(names []string, inputs []*onnx.Tensor, outputs []string) ([]*onnx.Tensor, error) {
		gotNames = names
		for _, in := range inputs {
			gotShapes = append(gotShapes, in.Shape())
		}
		gotSpeed, _ = inputs[2].FloatData()
		assert.Equal(t, []string{OutputAudio}, outputs)
		return echoAudio(names, inputs, outputs)
	}}
	s := testSession(t, r)

	out, err := s.Infer(context.Background(), InferenceRequest{
		Tokens: [][]int64{{0, 50, 83, 0}},
		Styles: [][]float32{make([]float32, StyleDim)},
	})
	require.NoError(t, err)
	assert.Len(t, out.Data, 400)
	assert.Equal(t, []int64{1, 400}, out.Shape)

	assert.Equal(t, []string{InputTokens, InputStyle, InputSpeed}, gotNames)
	assert.Equal(t, [][]int64{{1, 4}, {1, StyleDim}, {1}}, gotShapes)
	assert.Equal(t, []float32{DefaultSpeed}, gotSpeed)
}

func TestInfer_RejectsBadShapes(t *testing.T) {
	r := &fakeRunner{}
	s := testSession(t, r)

	short := request([]int64{0, 1, 0})
	short.Styles[0] = short.Styles[0][:StyleDim-1]

	mismatch := request([]int64{0, 1, 0})
	mismatch.Styles = append(mismatch.Styles, make([]float32, StyleDim))

	tests := []struct {
		name string
		req  InferenceRequest
	}{
		{"empty batch", InferenceRequest{}},
		{"empty row", request([]int64{})},
		{"ragged", request([]int64{0, 1, 2, 0}, []int64{0, 1, 0})},
		{"short style", short},
		{"batch mismatch", mismatch},
		{"id out of range", request([]int64{0, VocabSize, 0})},
		{"negative id", request([]int64{0, -1, 0})},
		{"too long", request(make([]int64, MaxTokens+1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := s.Infer(context.Background(), tt.req)
			assert.Nil(t, out)
			assert.ErrorIs(t, err, ErrTensorShape)
		})
	}
	assert.Zero(t, r.calls.Load(), "invalid requests must not reach the engine")
}

func TestInfer_Batch(t *testing.T) {
	s := testSession(t, &fakeRunner{})
	out, err := s.Infer(context.Background(), request([]int64{0, 1, 0}, []int64{0, 2, 0}))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Data)
}

func TestInfer_SessionNotReady(t *testing.T) {
	var nilSession *Session
	_, err := nilSession.Infer(context.Background(), request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.ErrorIs(t, err, ErrInference)

	r := &fakeRunner{}
	s := testSession(t, r)
	require.NoError(t, s.Close())
	assert.True(t, r.closed.Load())
	require.NoError(t, s.Close())

	_, err = s.Infer(context.Background(), request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrSessionNotReady)
	assert.Nil(t, s.Inputs())
}

func TestInfer_MissingOutput(t *testing.T) {
	tests := []struct {
		name string
		run  func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error)
	}{
		{"engine reports", func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error) {
			return nil, fmt.Errorf("%w: %q", onnx.ErrOutputNotFound, OutputAudio)
		}},
		{"nil tensor", func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error) {
			return []*onnx.Tensor{nil}, nil
		}},
		{"no tensors", func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error) {
			return nil, nil
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testSession(t, &fakeRunner{run: tt.run})
			_, err := s.Infer(context.Background(), request([]int64{0, 1, 0}))
			assert.ErrorIs(t, err, ErrMissingOutput)
			assert.ErrorIs(t, err, ErrInference)
		})
	}
}

func TestInfer_EngineFailure(t *testing.T) {
	boom := errors.New("engine exploded")
	s := testSession(t, &fakeRunner{run: func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error) {
		return nil, boom
	}})

	_, err := s.Infer(context.Background(), request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMissingOutput)
}

func TestInfer_WrongOutputType(t *testing.T) {
	s := testSession(t, &fakeRunner{run: func([]string, []*onnx.Tensor, []string) ([]*onnx.Tensor, error) {
		out, err := onnx.NewInt64Tensor([]int64{1}, []int64{1})
		return []*onnx.Tensor{out}, err
	}})

	_, err := s.Infer(context.Background(), request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrInference)
}

func TestInfer_ContextDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	s := testSession(t, &fakeRunner{run: func(names []string, inputs []*onnx.Tensor, outputs []string) ([]*onnx.Tensor, error) {
		<-release
		return echoAudio(names, inputs, outputs)
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := s.Infer(ctx, request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInfer_CanceledContext(t *testing.T) {
	r := &fakeRunner{}
	s := testSession(t, r)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Infer(ctx, request([]int64{0, 1, 0}))
	assert.ErrorIs(t, err, ErrInference)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int64(0), r.calls.Load())
}

func TestInfer_Concurrent(t *testing.T) {
	s := testSession(t, &fakeRunner{})

	var wg sync.WaitGroup
	errs := make(chan error, 32)
	for i := range 32 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			seqLen := 3 + i%7
			req := request(make([]int64, seqLen))
			for j := range req.Styles[0] {
				req.Styles[0][j] = float32(i)
			}
			out, err := s.Infer(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			if len(out.Data) != seqLen*100 {
				errs <- fmt.Errorf("request %d: %d samples, want %d", i, len(out.Data), seqLen*100)
				return
			}
			for _, v := range out.Data {
				if v != float32(i) {
					errs <- fmt.Errorf("request %d: saw sample %v from another request", i, v)
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
