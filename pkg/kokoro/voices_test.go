package kokoro

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bucket0(t *testing.T, table *VoiceTable, name string) []float32 {
	t.Helper()
	v, ok := table.Voice(name)
	require.True(t, ok, name)
	style, err := v.Style(0)
	require.NoError(t, err)
	return style
}

func TestResolve_SingleVoice(t *testing.T) {
	table := testVoices(t)

	styles, err := table.Resolve("a")
	require.NoError(t, err)
	require.Len(t, styles, 1)
	require.Len(t, styles[0], StyleDim)
	assert.Equal(t, bucket0(t, table, "a"), styles[0])
	assert.NotContains(t, styles[0], unusedBucket)
}

func TestResolve_ReturnsCopy(t *testing.T) {
	table := testVoices(t)

	styles, err := table.Resolve("a")
	require.NoError(t, err)
	styles[0][0] = 1000

	again, err := table.Resolve("a")
	require.NoError(t, err)
	assert.Equal(t, float32(1), again[0][0])
}

func TestResolve_Blend(t *testing.T) {
	table := testVoices(t)
	a, b := bucket0(t, table, "a"), bucket0(t, table, "b")

	styles, err := table.Resolve("a.4+b.6")
	require.NoError(t, err)
	require.Len(t, styles, 1)
	for j := range StyleDim {
		assert.InDelta(t, 0.4*a[j]+0.6*b[j], styles[0][j], 1e-4, "dim %d", j)
	}
}

func TestResolve_BlendWeightsNotNormalized(t *testing.T) {
	table := testVoices(t)

	styles, err := table.Resolve("c.9+c.9")
	require.NoError(t, err)
	assert.InDelta(t, 3.6, styles[0][0], 1e-5)
}

func TestResolve_BlendSkipsUnknownVoice(t *testing.T) {
	table := testVoices(t)
	a := bucket0(t, table, "a")

	styles, err := table.Resolve("a.4+unknown.6")
	require.NoError(t, err)
	for j := range StyleDim {
		assert.InDelta(t, 0.4*a[j], styles[0][j], 1e-4, "dim %d", j)
	}
}

func TestResolve_BlendSkipsMalformedComponents(t *testing.T) {
	table := testVoices(t)
	c := bucket0(t, table, "c")

	for _, name := range []string{"a+c.5", "a.x+c.5", "a.45+c.5", ".4+c.5", " c.5 + a. "} {
		styles, err := table.Resolve(name)
		require.NoError(t, err, name)
		assert.InDelta(t, 0.5*c[0], styles[0][0], 1e-5, name)
		assert.InDelta(t, 0.5*c[StyleDim-1], styles[0][StyleDim-1], 1e-5, name)
	}
}

func TestResolve_ZeroWeightCountsAsFound(t *testing.T) {
	table := testVoices(t)

	styles, err := table.Resolve("a.0+")
	require.NoError(t, err)
	assert.Equal(t, make([]float32, StyleDim), styles[0])
}

func TestResolve_NoValidComponents(t *testing.T) {
	table := testVoices(t)

	for _, name := range []string{"", "   ", "+", "x.4+y.6", "a+b", "a.45+b.67"} {
		_, err := table.Resolve(name)
		assert.ErrorIs(t, err, ErrNoValidComponents, "%q", name)
		assert.ErrorIs(t, err, ErrStyleResolution, "%q", name)
	}
}

func TestResolve_UnknownVoice(t *testing.T) {
	table := testVoices(t)

	_, err := table.Resolve("nobody")
	assert.ErrorIs(t, err, ErrUnknownVoice)
	assert.ErrorIs(t, err, ErrStyleResolution)
	assert.NotErrorIs(t, err, ErrNoValidComponents)
}

func TestVoiceTable_Names(t *testing.T) {
	table := testVoices(t)
	assert.Equal(t, 3, table.Len())
	assert.Equal(t, []string{"a", "b", "c"}, table.Names())

	_, ok := table.Voice("missing")
	assert.False(t, ok)

	v, _ := table.Voice("a")
	_, err := v.Style(StyleBuckets)
	assert.Error(t, err)
}

func TestNewVoiceTable_RejectsBadShapes(t *testing.T) {
	good := voiceData(constant(1))

	tests := []struct {
		name string
		raw  map[string][][][]float32
	}{
		{"empty", map[string][][][]float32{}},
		{"empty name", map[string][][][]float32{"": good}},
		{"too few buckets", map[string][][][]float32{"v": good[:StyleBuckets-1]}},
		{"two rows", map[string][][][]float32{"v": withBucket(good, 3, [][]float32{make([]float32, StyleDim), make([]float32, StyleDim)})}},
		{"short style", map[string][][][]float32{"v": withBucket(good, 10, [][]float32{make([]float32, StyleDim-1)})}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewVoiceTable(tt.raw)
			assert.ErrorIs(t, err, ErrLoad)
		})
	}
}

func withBucket(data [][][]float32, i int, bucket [][]float32) [][][]float32 {
	out := append([][][]float32(nil), data...)
	out[i] = bucket
	return out
}

func TestLoadVoices_JSON(t *testing.T) {
	raw := map[string][][][]float32{
		"af_sarah":  voiceData(ramp(0.01)),
		"af_nicole": voiceData(constant(0.5)),
	}
	data, err := json.Marshal(raw)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "voices.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	table, err := LoadVoices(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"af_nicole", "af_sarah"}, table.Names())

	styles, err := table.Resolve("af_sarah.4+af_nicole.6")
	require.NoError(t, err)
	assert.InDelta(t, 0.4*0.01+0.6*0.5, styles[0][0], 1e-5)
}

func TestLoadVoices_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadVoices(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, ErrLoad)

	malformed := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(malformed, []byte(`{"a": [[[1, 2`), 0o644))
	_, err = LoadVoices(malformed)
	assert.ErrorIs(t, err, ErrLoad)

	wrongShape := filepath.Join(dir, "shape.json")
	require.NoError(t, os.WriteFile(wrongShape, []byte(`{"a": [[[1, 2, 3]]]}`), 0o644))
	_, err = LoadVoices(wrongShape)
	assert.ErrorIs(t, err, ErrLoad)

	badPack := filepath.Join(dir, "voices.msgpack")
	require.NoError(t, os.WriteFile(badPack, []byte{0xc1}, 0o644))
	_, err = LoadVoices(badPack)
	assert.ErrorIs(t, err, ErrLoad)
}

func TestPackVoices(t *testing.T) {
	table := testVoices(t)
	path := filepath.Join(t.TempDir(), "voices.msgpack")

	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, PackVoices(f, table))
	require.NoError(t, f.Close())

	loaded, err := LoadVoices(path)
	require.NoError(t, err)
	assert.Equal(t, table.Names(), loaded.Names())
	for _, name := range table.Names() {
		want, _ := table.Voice(name)
		got, _ := loaded.Voice(name)
		assert.Equal(t, want.buckets, got.buckets, name)
	}
}
