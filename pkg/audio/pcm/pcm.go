package pcm

import "time"

const (
	// F32Mono24K represents 32-bit IEEE float samples; rate=24000; channels=1.
	// This is the native output format of the Kokoro acoustic model.
	F32Mono24K Format = iota
)

// WAV format tags.
const (
	wavFormatPCM   = 1
	wavFormatFloat = 3
)

// Format represents an audio format configuration.
type Format int

// SampleRate returns the sample rate in Hz for this format.
func (f Format) SampleRate() int {
	switch f {
	case F32Mono24K:
		return 24000
	}
	panic("pcm: invalid audio type")
}

// Channels returns the number of audio channels for this format.
func (f Format) Channels() int {
	switch f {
	case F32Mono24K:
		return 1
	}
	panic("pcm: invalid audio type")
}

// Depth returns the bit depth for this format.
func (f Format) Depth() int {
	switch f {
	case F32Mono24K:
		return 32
	}
	panic("pcm: invalid audio type")
}

// IsFloat reports whether samples are IEEE floats rather than integers.
func (f Format) IsFloat() bool {
	switch f {
	case F32Mono24K:
		return true
	}
	panic("pcm: invalid audio type")
}

// WAVFormatTag returns the WAVE fmt chunk format tag (1 = PCM, 3 = IEEE float).
func (f Format) WAVFormatTag() int {
	if f.IsFloat() {
		return wavFormatFloat
	}
	return wavFormatPCM
}

// SamplesDuration returns the playback duration of n samples.
func (f Format) SamplesDuration(n int) time.Duration {
	frames := int64(n) / int64(f.Channels())
	return time.Duration(frames) * time.Second / time.Duration(f.SampleRate())
}

// SamplesInDuration returns the number of samples in the given duration.
func (f Format) SamplesInDuration(d time.Duration) int64 {
	return int64(time.Duration(f.SampleRate())*d/time.Second) * int64(f.Channels())
}

// BytesRate returns the byte rate of the audio data.
func (f Format) BytesRate() int {
	return f.SampleRate() * f.Channels() * f.Depth() / 8
}

// String returns a human-readable string representation of the format.
func (f Format) String() string {
	switch f {
	case F32Mono24K:
		return "audio/x-float32; rate=24000; channels=1"
	}
	panic("pcm: invalid audio type")
}
