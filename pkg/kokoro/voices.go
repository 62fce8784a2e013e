package kokoro

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	// StyleDim is the length of a style vector.
	StyleDim = 256

	// StyleBuckets is the number of style vectors stored per voice.
	StyleBuckets = 511

	// styleBucket is the bucket every resolution reads.
	styleBucket = 0
)

// Voice is one named entry of a VoiceTable.
type Voice struct {
	Name string

	// buckets holds StyleBuckets rows of StyleDim floats.
	buckets [][]float32
}

// Style returns a copy of the vector in the given bucket.
func (v *Voice) Style(bucket int) ([]float32, error) {
	if bucket < 0 || bucket >= len(v.buckets) {
		return nil, fmt.Errorf("kokoro: voice %q: bucket %d out of range", v.Name, bucket)
	}
	return append([]float32(nil), v.buckets[bucket]...), nil
}

// VoiceTable is an immutable set of named voice styles. It is safe for
// concurrent use.
type VoiceTable struct {
	voices map[string]*Voice
	names  []string
}

// packedVoice is the msgpack form of one voice: the 511×1×256 array
// flattened row-major.
type packedVoice struct {
	Shape []int     `msgpack:"shape"`
	Data  []float32 `msgpack:"data"`
}

// LoadVoices reads a voice table from path. Files ending in .msgpack are
// read in the packed form written by PackVoices; anything else is read as
// JSON mapping each voice name to a 511×1×256 array.
func LoadVoices(path string) (*VoiceTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: voices: %w", ErrLoad, err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".msgpack") {
		return decodePackedVoices(f)
	}

	var raw map[string][][][]float32
	if err := json.NewDecoder(f).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: voices: parse %s: %w", ErrLoad, path, err)
	}
	return NewVoiceTable(raw)
}

func decodePackedVoices(r io.Reader) (*VoiceTable, error) {
	var packed map[string]packedVoice
	if err := msgpack.NewDecoder(r).Decode(&packed); err != nil {
		return nil, fmt.Errorf("%w: voices: decode msgpack: %w", ErrLoad, err)
	}
	raw := make(map[string][][][]float32, len(packed))
	for name, p := range packed {
		if len(p.Shape) != 3 || p.Shape[0] != StyleBuckets || p.Shape[1] != 1 || p.Shape[2] != StyleDim {
			return nil, fmt.Errorf("%w: voices: %q has shape %v, want [%d 1 %d]", ErrLoad, name, p.Shape, StyleBuckets, StyleDim)
		}
		if len(p.Data) != StyleBuckets*StyleDim {
			return nil, fmt.Errorf("%w: voices: %q has %d values, want %d", ErrLoad, name, len(p.Data), StyleBuckets*StyleDim)
		}
		buckets := make([][][]float32, StyleBuckets)
		for i := range buckets {
			buckets[i] = [][]float32{p.Data[i*StyleDim : (i+1)*StyleDim]}
		}
		raw[name] = buckets
	}
	return NewVoiceTable(raw)
}

// NewVoiceTable builds a table from parsed voice data. Every entry must have
// shape 511×1×256 and the table must not be empty. The input is copied.
func NewVoiceTable(raw map[string][][][]float32) (*VoiceTable, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: voices: no voices", ErrLoad)
	}
	t := &VoiceTable{
		voices: make(map[string]*Voice, len(raw)),
		names:  make([]string, 0, len(raw)),
	}
	for name, data := range raw {
		if name == "" {
			return nil, fmt.Errorf("%w: voices: empty voice name", ErrLoad)
		}
		if len(data) != StyleBuckets {
			return nil, fmt.Errorf("%w: voices: %q has %d buckets, want %d", ErrLoad, name, len(data), StyleBuckets)
		}
		buckets := make([][]float32, StyleBuckets)
		for i, b := range data {
			if len(b) != 1 || len(b[0]) != StyleDim {
				return nil, fmt.Errorf("%w: voices: %q bucket %d is not 1×%d", ErrLoad, name, i, StyleDim)
			}
			buckets[i] = append([]float32(nil), b[0]...)
		}
		t.voices[name] = &Voice{Name: name, buckets: buckets}
		t.names = append(t.names, name)
	}
	sort.Strings(t.names)
	return t, nil
}

// Len returns the number of voices.
func (t *VoiceTable) Len() int {
	return len(t.voices)
}

// Names returns the voice names in sorted order.
func (t *VoiceTable) Names() []string {
	return append([]string(nil), t.names...)
}

// Voice returns the named voice.
func (t *VoiceTable) Voice(name string) (*Voice, bool) {
	v, ok := t.voices[name]
	return v, ok
}

// Resolve returns the style for styleName as a batch of one row.
//
// A plain name selects that voice. A name containing "+" is a blend of
// components "name.D" where D is a single digit weighing the voice by D/10:
//
//	af_sarah.4+af_nicole.6
//
// Malformed components and unknown voices inside a blend are skipped. The
// weights are applied as given and are not normalized.
func (t *VoiceTable) Resolve(styleName string) ([][]float32, error) {
	name := strings.TrimSpace(styleName)
	if name == "" {
		return nil, fmt.Errorf("%w: empty style name", ErrNoValidComponents)
	}
	if !strings.Contains(name, "+") {
		v, ok := t.voices[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownVoice, name)
		}
		return [][]float32{append([]float32(nil), v.buckets[styleBucket]...)}, nil
	}

	blended := make([]float32, StyleDim)
	found := 0
	for _, part := range strings.Split(name, "+") {
		voice, weight, ok := parseComponent(part)
		if !ok {
			continue
		}
		v, ok := t.voices[voice]
		if !ok {
			continue
		}
		found++
		for j, x := range v.buckets[styleBucket] {
			blended[j] += weight * x
		}
	}
	if found == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoValidComponents, name)
	}
	return [][]float32{blended}, nil
}

// parseComponent splits "name.D" at the first dot.
func parseComponent(s string) (name string, weight float32, ok bool) {
	name, digit, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok || name == "" || len(digit) != 1 || digit[0] < '0' || digit[0] > '9' {
		return "", 0, false
	}
	return name, float32(digit[0]-'0') * 0.1, true
}

// PackVoices writes t in the msgpack form read by LoadVoices.
func PackVoices(w io.Writer, t *VoiceTable) error {
	packed := make(map[string]packedVoice, len(t.voices))
	for name, v := range t.voices {
		data := make([]float32, 0, StyleBuckets*StyleDim)
		for _, b := range v.buckets {
			data = append(data, b...)
		}
		packed[name] = packedVoice{Shape: []int{StyleBuckets, 1, StyleDim}, Data: data}
	}
	enc := msgpack.NewEncoder(w)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(packed); err != nil {
		return fmt.Errorf("kokoro: pack voices: %w", err)
	}
	return nil
}
