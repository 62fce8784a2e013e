package kokoro

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/haivivi/kokoro/pkg/onnx"
)

// unusedBucket fills every bucket but 0. No fill function produces it.
const unusedBucket float32 = -12345

// voiceData builds a 511×1×256 voice whose bucket 0 is fill(j) and whose
// other buckets hold unusedBucket.
func voiceData(fill func(j int) float32) [][][]float32 {
	data := make([][][]float32, StyleBuckets)
	for i := range data {
		row := make([]float32, StyleDim)
		for j := range row {
			if i == 0 {
				row[j] = fill(j)
			} else {
				row[j] = unusedBucket
			}
		}
		data[i] = [][]float32{row}
	}
	return data
}

func constant(v float32) func(int) float32 {
	return func(int) float32 { return v }
}

func ramp(scale float32) func(int) float32 {
	return func(j int) float32 { return scale * float32(j+1) }
}

func testVoices(t *testing.T) *VoiceTable {
	t.Helper()
	table, err := NewVoiceTable(map[string][][][]float32{
		"a": voiceData(ramp(1)),
		"b": voiceData(ramp(-0.5)),
		"c": voiceData(constant(2)),
	})
	require.NoError(t, err)
	return table
}

func writeModel(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "kokoro.onnx")
	require.NoError(t, os.WriteFile(path, []byte("model"), 0o644))
	return path
}

// fakeRunner stands in for a loaded model.
type fakeRunner struct {
	run    func(names []string, inputs []*onnx.Tensor, outputs []string) ([]*onnx.Tensor, error)
	calls  atomic.Int64
	closed atomic.Bool
}

func (r *fakeRunner) Run(names []string, inputs []*onnx.Tensor, outputs []string) ([]*onnx.Tensor, error) {
	r.calls.Add(1)
	if r.run == nil {
		return echoAudio(names, inputs, outputs)
	}
	return r.run(names, inputs, outputs)
}

func (r *fakeRunner) Inputs() []string  { return []string{InputTokens, InputStyle, InputSpeed} }
func (r *fakeRunner) Outputs() []string { return []string{OutputAudio} }

func (r *fakeRunner) Close() error {
	r.closed.Store(true)
	return nil
}

// echoAudio returns seq_len*100 samples, each equal to the first style value.
func echoAudio(names []string, inputs []*onnx.Tensor, outputs []string) ([]*onnx.Tensor, error) {
	byName := make(map[string]*onnx.Tensor, len(names))
	for i, n := range names {
		byName[n] = inputs[i]
	}
	seqLen := byName[InputTokens].Shape()[1]
	style, err := byName[InputStyle].FloatData()
	if err != nil {
		return nil, err
	}
	samples := make([]float32, seqLen*100)
	for i := range samples {
		samples[i] = style[0]
	}
	out, err := onnx.NewTensor([]int64{1, int64(len(samples))}, samples)
	if err != nil {
		return nil, err
	}
	return []*onnx.Tensor{out}, nil
}

// fakeBackend opens fakeRunners and records every attempt.
type fakeBackend struct {
	mu          sync.Mutex
	opened      []Device
	limits      []uint64
	failAccel   bool
	failDefault bool
	runner      *fakeRunner
}

var errNoDevice = errors.New("no cuda device")

func (b *fakeBackend) Open(modelPath string, dev Device, memoryLimit uint64) (Runner, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opened = append(b.opened, dev)
	b.limits = append(b.limits, memoryLimit)
	if dev == DeviceAccelerator && b.failAccel {
		return nil, errNoDevice
	}
	if dev == DeviceDefault && b.failDefault {
		return nil, errors.New("corrupt model")
	}
	if b.runner == nil {
		b.runner = &fakeRunner{}
	}
	return b.runner, nil
}

func testSession(t *testing.T, r *fakeRunner) *Session {
	t.Helper()
	s, err := Load(&fakeBackend{runner: r}, writeModel(t), DeviceConfig{})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

type mockPhonemizer struct {
	mock.Mock
}

func (m *mockPhonemizer) Phonemize(ctx context.Context, text, language string) ([]string, error) {
	args := m.Called(ctx, text, language)
	if syms, ok := args.Get(0).([]string); ok {
		return syms, args.Error(1)
	}
	return nil, args.Error(1)
}
