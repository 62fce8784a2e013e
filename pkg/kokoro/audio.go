package kokoro

import (
	"fmt"
	"time"

	"github.com/haivivi/kokoro/pkg/audio/pcm"
)

// AudioFormat is the format of every AudioBuffer.
const AudioFormat = pcm.F32Mono24K

// AudioBuffer holds rendered mono samples in AudioFormat.
type AudioBuffer struct {
	Samples []float32
}

// Render flattens the model output into an AudioBuffer. The samples are
// copied.
func Render(t *AudioTensor) *AudioBuffer {
	if t == nil {
		return &AudioBuffer{}
	}
	return &AudioBuffer{Samples: append([]float32(nil), t.Data...)}
}

// Format returns AudioFormat.
func (b *AudioBuffer) Format() pcm.Format {
	return AudioFormat
}

// SampleRate returns the sample rate in Hz.
func (b *AudioBuffer) SampleRate() int {
	return AudioFormat.SampleRate()
}

// Channels returns the channel count.
func (b *AudioBuffer) Channels() int {
	return AudioFormat.Channels()
}

// Len returns the number of samples.
func (b *AudioBuffer) Len() int {
	return len(b.Samples)
}

// Duration returns the playback duration of the buffer.
func (b *AudioBuffer) Duration() time.Duration {
	return AudioFormat.SamplesDuration(len(b.Samples))
}

// WriteFile writes buf to path as a 32-bit float mono 24 kHz WAV file,
// replacing any existing file.
func WriteFile(buf *AudioBuffer, path string) error {
	if buf == nil {
		return fmt.Errorf("%w: nil buffer", ErrAudioWrite)
	}
	if err := pcm.WriteWAVFile(path, AudioFormat, buf.Samples); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrAudioWrite, path, err)
	}
	return nil
}
