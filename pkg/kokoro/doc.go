// Package kokoro implements the Kokoro text-to-speech synthesis pipeline.
//
// A [Synthesizer] turns text into a 24 kHz mono [AudioBuffer] in five steps:
//
//  1. a [Phonemizer] converts the text to phoneme symbols
//  2. [Tokenize] maps the symbols, wrapped in "$" boundary markers, to ids
//  3. a [VoiceTable] resolves the style name to a 256-dim style vector
//  4. a [Session] runs the acoustic model on the tokens and the style
//  5. [Render] flattens the model output into samples
//
// The voice table and the session are loaded once and shared read-only by
// all callers:
//
//	voices, _ := kokoro.LoadVoices("data/voices.json")
//	session, _ := kokoro.Load(&kokoro.ORTBackend{Env: env}, "checkpoints/kokoro-v0_19.onnx", kokoro.DeviceConfig{})
//	synth, _ := kokoro.NewSynthesizer(espeak, voices, session)
//	res, _ := synth.SynthesizeToFile(ctx, "Hello world", "en-us", "af_sarah.4+af_nicole.6", "out.wav")
//
// # Style Blends
//
// A style name containing "+" blends voices. Each component is "name.D"
// where D is one digit and the voice is weighted by D/10. Weights are not
// normalized. Malformed components and unknown voices inside a blend are
// skipped; a blend with no usable component fails with
// [ErrNoValidComponents].
//
// # Devices
//
// [Load] tries the accelerator when [DeviceConfig.UseAccelerator] is set
// and falls back to the default device only when
// [DeviceConfig.FallbackToDefault] allows it.
package kokoro
