// Package audio provides audio utilities for synthesized speech.
//
// This package serves as an umbrella for audio-related sub-packages:
//
//   - pcm: PCM sample format description and WAV encoding
//
// Example usage:
//
//	import "github.com/haivivi/kokoro/pkg/audio/pcm"
//
//	format := pcm.F32Mono24K
//	err := pcm.WriteWAVFile("out.wav", format, samples)
package audio
