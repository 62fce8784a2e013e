package kokoro

import "errors"

// Sentinel errors. Failures returned by this package wrap one of these so
// callers can classify them with errors.Is.
var (
	// ErrLoad is returned when the model or the voice table cannot be loaded.
	ErrLoad = errors.New("kokoro: load failed")

	// ErrAcceleratorInit is returned when the accelerated path was requested,
	// could not be initialized, and fallback to the default device is off.
	ErrAcceleratorInit = errors.New("kokoro: accelerator init failed")

	// ErrEmptyInput is returned for text that is empty after trimming.
	ErrEmptyInput = errors.New("kokoro: empty input")

	// ErrPhonemize wraps failures of the external phonemizer.
	ErrPhonemize = errors.New("kokoro: phonemize failed")

	// ErrUnknownSymbol is returned by Tokenize for a symbol outside the vocabulary.
	ErrUnknownSymbol = errors.New("kokoro: unknown phoneme symbol")

	// ErrStyleResolution is the parent of all style resolution failures.
	ErrStyleResolution = errors.New("kokoro: style resolution failed")

	// ErrUnknownVoice is returned when a single-voice style name is not in
	// the table. It also matches ErrStyleResolution.
	ErrUnknownVoice = styleError("unknown voice")

	// ErrNoValidComponents is returned when a style name yields no usable
	// voice at all. It also matches ErrStyleResolution.
	ErrNoValidComponents = styleError("no valid style components")

	// ErrTensorShape is returned for empty, ragged or mis-sized input batches.
	ErrTensorShape = errors.New("kokoro: invalid tensor shape")

	// ErrInference is the parent of all inference failures.
	ErrInference = errors.New("kokoro: inference failed")

	// ErrSessionNotReady is returned when inferring without a loaded session.
	// It also matches ErrInference.
	ErrSessionNotReady = inferenceError("session not ready")

	// ErrMissingOutput is returned when the model result lacks the audio
	// tensor. It also matches ErrInference.
	ErrMissingOutput = inferenceError("missing output")

	// ErrAudioWrite is returned when the rendered audio cannot be written.
	ErrAudioWrite = errors.New("kokoro: audio write failed")
)

// kindError is a leaf error that also matches a parent sentinel.
type kindError struct {
	msg    string
	parent error
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.parent }

func styleError(msg string) error {
	return &kindError{msg: "kokoro: " + msg, parent: ErrStyleResolution}
}

func inferenceError(msg string) error {
	return &kindError{msg: "kokoro: " + msg, parent: ErrInference}
}
