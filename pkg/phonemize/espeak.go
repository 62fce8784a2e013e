// Package phonemize converts text to IPA phoneme symbols for the synthesis
// pipeline.
//
// [Espeak] runs the espeak-ng binary. [Cache] puts a kv store in front of
// any [Phonemizer] so repeated text skips the subprocess.
package phonemize

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// Phonemizer converts text in a language to phoneme symbols.
type Phonemizer interface {
	Phonemize(ctx context.Context, text, language string) ([]string, error)
}

// CommandRunner runs an external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, name string, args []string, stdin io.Reader) (stdout, stderr []byte, err error)
}

// ExecCommandRunner runs commands with os/exec.
type ExecCommandRunner struct{}

// Run runs a command.
func (ExecCommandRunner) Run(ctx context.Context, name string, args []string, stdin io.Reader) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = stdin
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.Bytes(), stderr.Bytes(), err
}

// DefaultBinary is the espeak-ng executable looked up in PATH.
const DefaultBinary = "espeak-ng"

// ErrEmptyOutput is returned when espeak-ng produces no phonemes.
var ErrEmptyOutput = errors.New("phonemize: no phonemes produced")

// voiceAliases maps the language tags accepted by the HTTP and CLI
// surfaces to espeak-ng voice names.
var voiceAliases = map[string]string{
	"zh-cn": "cmn",
	"zh":    "cmn",
	"ja-jp": "ja",
	"de-de": "de",
	"ru-ru": "ru",
	"fr-fr": "fr-fr",
	"en":    "en-us",
}

// Voice returns the espeak-ng voice for a language tag.
func Voice(language string) string {
	lang := strings.ToLower(strings.TrimSpace(language))
	if v, ok := voiceAliases[lang]; ok {
		return v
	}
	if lang == "" {
		return "en-us"
	}
	return lang
}

// stressMarks are removed unless stress output is requested.
var stressMarks = strings.NewReplacer("ˈ", "", "ˌ", "")

// Espeak phonemizes text with the espeak-ng binary.
type Espeak struct {
	binary     string
	withStress bool
	timeout    time.Duration
	runner     CommandRunner
}

// EspeakOption configures an Espeak.
type EspeakOption func(*Espeak)

// WithBinary sets the espeak-ng executable.
func WithBinary(path string) EspeakOption {
	return func(e *Espeak) {
		if path != "" {
			e.binary = path
		}
	}
}

// WithStress keeps primary and secondary stress marks in the output.
func WithStress(on bool) EspeakOption {
	return func(e *Espeak) { e.withStress = on }
}

// WithTimeout bounds each espeak-ng invocation. Zero means no limit.
func WithTimeout(d time.Duration) EspeakOption {
	return func(e *Espeak) { e.timeout = d }
}

// WithRunner replaces the command runner.
func WithRunner(r CommandRunner) EspeakOption {
	return func(e *Espeak) { e.runner = r }
}

// NewEspeak returns an espeak-ng phonemizer.
func NewEspeak(opts ...EspeakOption) *Espeak {
	e := &Espeak{
		binary: DefaultBinary,
		runner: ExecCommandRunner{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Binary returns the configured executable.
func (e *Espeak) Binary() string {
	return e.binary
}

// CacheVariant implements Variant. Stress marks change the output, so
// entries cached with and without them are kept apart.
func (e *Espeak) CacheVariant() string {
	return "stress=" + strconv.FormatBool(e.withStress)
}

// Phonemize runs `espeak-ng -q --ipa -v <voice>` with text on stdin. Each
// output line is one clause; clauses are returned in order with a single
// space element between them.
func (e *Espeak) Phonemize(ctx context.Context, text, language string) ([]string, error) {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	voice := Voice(language)
	args := []string{"-q", "--ipa", "-v", voice}
	stdout, stderr, err := e.runner.Run(ctx, e.binary, args, strings.NewReader(text))
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("phonemize: %s -v %s: %w: %s", e.binary, voice, err, msg)
		}
		return nil, fmt.Errorf("phonemize: %s -v %s: %w", e.binary, voice, err)
	}

	var out []string
	sc := bufio.NewScanner(bytes.NewReader(stdout))
	for sc.Scan() {
		line := strings.Join(strings.Fields(sc.Text()), " ")
		if !e.withStress {
			line = stressMarks.Replace(line)
		}
		if line == "" {
			continue
		}
		if len(out) > 0 {
			out = append(out, " ")
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonemize: read output: %w", err)
	}
	if len(out) == 0 {
		return nil, ErrEmptyOutput
	}
	return out, nil
}
