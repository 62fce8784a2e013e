package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/haivivi/kokoro/pkg/artifact"
	"github.com/haivivi/kokoro/pkg/audio/pcm"
	"github.com/haivivi/kokoro/pkg/cli"
	"github.com/haivivi/kokoro/pkg/kokoro"
	"github.com/haivivi/kokoro/pkg/kv"
	"github.com/haivivi/kokoro/pkg/phonemize"
)

// setupTestEnv points KOKORO_HOME at a fresh directory holding a quiet
// config file.
func setupTestEnv(t *testing.T) *cli.Paths {
	t.Helper()
	paths := &cli.Paths{Root: t.TempDir()}
	t.Setenv(cli.HomeEnv, paths.Root)
	if err := os.WriteFile(paths.ConfigFile(), []byte("log:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	return paths
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func runCmd(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()

	resetFlags(rootCmd)
	var outBuf, errBuf bytes.Buffer
	rootCmd.SetOut(&outBuf)
	rootCmd.SetErr(&errBuf)
	rootCmd.SetArgs(args)
	err = rootCmd.ExecuteContext(context.Background())
	rootCmd.SetOut(nil)
	rootCmd.SetErr(nil)

	return outBuf.String(), errBuf.String(), err
}

func writeVoices(t *testing.T, names ...string) string {
	t.Helper()
	raw := make(map[string][][][]float32, len(names))
	for _, name := range names {
		data := make([][][]float32, kokoro.StyleBuckets)
		for i := range data {
			data[i] = [][]float32{make([]float32, kokoro.StyleDim)}
		}
		raw[name] = data
	}
	b, err := json.Marshal(raw)
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "voices.json")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestVersion(t *testing.T) {
	setupTestEnv(t)

	stdout, _, err := runCmd(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "kokoro") {
		t.Fatalf("expected 'kokoro', got: %s", stdout)
	}
}

func TestVoicesListJSON(t *testing.T) {
	setupTestEnv(t)
	voices := writeVoices(t, "bm_george", "af_sky", "custom")

	stdout, _, err := runCmd(t, "voices", "list", "--voices", voices, "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var got voiceList
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	want := []voiceInfo{
		{Name: "af_sky", Accent: "American English", Gender: "female"},
		{Name: "bm_george", Accent: "British English", Gender: "male"},
		{Name: "custom"},
	}
	if len(got.Voices) != len(want) {
		t.Fatalf("voices = %+v, want %+v", got.Voices, want)
	}
	for i := range want {
		if got.Voices[i] != want[i] {
			t.Errorf("voice[%d] = %+v, want %+v", i, got.Voices[i], want[i])
		}
	}
}

func TestVoicesListTable(t *testing.T) {
	setupTestEnv(t)
	voices := writeVoices(t, "af_sky")

	stdout, _, err := runCmd(t, "voices", "list", "--voices", voices)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"NAME", "af_sky", "American English"} {
		if !strings.Contains(stdout, s) {
			t.Errorf("table missing %q:\n%s", s, stdout)
		}
	}
}

func TestVoicesListBadFormat(t *testing.T) {
	setupTestEnv(t)
	voices := writeVoices(t, "af_sky")

	if _, _, err := runCmd(t, "voices", "list", "--voices", voices, "--format", "xml"); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestVoicesMissingFile(t *testing.T) {
	setupTestEnv(t)

	_, _, err := runCmd(t, "voices", "list", "--voices", filepath.Join(t.TempDir(), "none.json"))
	if !errors.Is(err, kokoro.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
}

func TestVoicesPack(t *testing.T) {
	setupTestEnv(t)
	voices := writeVoices(t, "af_sky", "am_adam")
	packed := filepath.Join(t.TempDir(), "out", "voices.msgpack")

	stdout, _, err := runCmd(t, "voices", "pack", "--voices", voices, packed)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Packed 2 voices") {
		t.Errorf("stdout = %q", stdout)
	}

	table, err := kokoro.LoadVoices(packed)
	if err != nil {
		t.Fatal(err)
	}
	if names := table.Names(); len(names) != 2 || names[0] != "af_sky" || names[1] != "am_adam" {
		t.Errorf("names = %v", names)
	}

	stdout, _, err = runCmd(t, "voices", "list", "--voices", packed, "--format", "yaml")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "am_adam") {
		t.Errorf("yaml listing missing am_adam:\n%s", stdout)
	}
}

func TestInvalidConfig(t *testing.T) {
	paths := setupTestEnv(t)
	if err := os.WriteFile(paths.ConfigFile(), []byte("modle_path: x\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCmd(t, "voices", "list"); err == nil {
		t.Fatal("expected config validation error")
	}
}

func TestSynthesizeMissingModel(t *testing.T) {
	setupTestEnv(t)
	voices := writeVoices(t, "af_sky")
	out := filepath.Join(t.TempDir(), "out.wav")

	_, _, err := runCmd(t,
		"-t", "hello", "-s", "af_sky", "-o", out,
		"--voices", voices, "-m", filepath.Join(t.TempDir(), "missing.onnx"),
	)
	if !errors.Is(err, kokoro.ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
	if _, err := os.Stat(out); !os.IsNotExist(err) {
		t.Error("no output file may be written when loading fails")
	}
}

type staticPhonemizer struct{}

func (staticPhonemizer) Phonemize(context.Context, string, string) ([]string, error) {
	return []string{"həlˈoʊ"}, nil
}

func TestCachePurge(t *testing.T) {
	paths := setupTestEnv(t)
	ctx := context.Background()

	store, err := kv.NewBadger(kv.BadgerOptions{Dir: paths.CacheDir()})
	if err != nil {
		t.Fatal(err)
	}
	cache := phonemize.NewCache(staticPhonemizer{}, store, 0, nil)
	for _, text := range []string{"hello", "world"} {
		if _, err := cache.Phonemize(ctx, text, "en-us"); err != nil {
			t.Fatal(err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatal(err)
	}

	stdout, _, err := runCmd(t, "cache", "purge")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Purged 2") {
		t.Errorf("stdout = %q", stdout)
	}

	stdout, _, err = runCmd(t, "cache", "purge")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(stdout, "Purged 0") {
		t.Errorf("second purge stdout = %q", stdout)
	}
}

func TestArtifactsListAndDelete(t *testing.T) {
	paths := setupTestEnv(t)
	ctx := context.Background()

	wav := filepath.Join(t.TempDir(), "output_a.wav")
	if err := pcm.WriteWAVFile(wav, pcm.F32Mono24K, make([]float32, 240)); err != nil {
		t.Fatal(err)
	}
	ledger, err := artifact.Open(ctx, paths.ArtifactsDB(), nil)
	if err != nil {
		t.Fatal(err)
	}
	rec, err := ledger.Record(ctx, artifact.Artifact{
		Path:     wav,
		Voice:    "af_sky",
		Language: "en-us",
		Samples:  240,
		Duration: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	ledger.Close()

	stdout, _, err := runCmd(t, "artifacts", "list", "--format", "json")
	if err != nil {
		t.Fatal(err)
	}
	var got artifactList
	if err := json.Unmarshal([]byte(stdout), &got); err != nil {
		t.Fatalf("invalid JSON %q: %v", stdout, err)
	}
	if len(got.Artifacts) != 1 || got.Artifacts[0].ID != rec.ID || got.Artifacts[0].Voice != "af_sky" {
		t.Fatalf("artifacts = %+v", got.Artifacts)
	}

	if _, _, err := runCmd(t, "artifacts", "delete", rec.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(wav); !os.IsNotExist(err) {
		t.Error("wav file should be removed")
	}

	_, _, err = runCmd(t, "artifacts", "delete", rec.ID)
	if !errors.Is(err, artifact.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestArtifactsDisabled(t *testing.T) {
	paths := setupTestEnv(t)
	if err := os.WriteFile(paths.ConfigFile(), []byte("artifacts:\n  disabled: true\nlog:\n  level: error\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := runCmd(t, "artifacts", "list"); err == nil {
		t.Fatal("expected error when artifacts are disabled")
	}
}
