package pcm

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// WriteWAV encodes samples as a WAV stream in the given format.
//
// The encoder seeks back to patch chunk sizes, so w must be seekable.
func WriteWAV(w io.WriteSeeker, f Format, samples []float32) error {
	enc := wav.NewEncoder(w, f.SampleRate(), f.Depth(), f.Channels(), f.WAVFormatTag())

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: f.Channels(),
			SampleRate:  f.SampleRate(),
		},
		SourceBitDepth: f.Depth(),
		Data:           make([]int, len(samples)),
	}
	for i, s := range samples {
		// The encoder emits int32(v) little-endian for 32-bit depth, which
		// reproduces the float bit pattern exactly.
		buf.Data[i] = int(int32(math.Float32bits(s)))
	}

	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("pcm: encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("pcm: finalize wav: %w", err)
	}
	return nil
}

// WriteWAVFile writes samples to path as a WAV file, creating parent
// directories and replacing any existing file.
func WriteWAVFile(path string, f Format, samples []float32) (err error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("pcm: create output dir: %w", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("pcm: create wav file: %w", err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("pcm: close wav file: %w", cerr)
		}
	}()

	return WriteWAV(file, f, samples)
}
