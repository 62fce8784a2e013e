// Package pcm provides types and utilities for working with PCM (Pulse Code
// Modulation) audio produced by the synthesizer.
//
// Key types:
//   - Format: sample rate, channel count, sample encoding
//
// Example usage:
//
//	format := pcm.F32Mono24K
//
//	// Duration of a rendered sample buffer
//	d := format.SamplesDuration(len(samples))
//
//	// Encode samples as a WAV file
//	err := pcm.WriteWAVFile("out.wav", format, samples)
package pcm
