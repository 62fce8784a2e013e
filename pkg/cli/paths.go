package cli

import (
	"os"
	"path/filepath"
)

const (
	// DefaultBaseDir is the directory under $HOME holding kokoro state.
	DefaultBaseDir = ".kokoro"
	// DefaultConfigFile is the config file name inside the base directory.
	DefaultConfigFile = "config.yaml"
	// HomeEnv overrides the base directory when set.
	HomeEnv = "KOKORO_HOME"
)

// Paths provides access to the kokoro directory structure
type Paths struct {
	// Root is the base directory, normally ~/.kokoro
	Root string
}

// NewPaths returns the layout rooted at $KOKORO_HOME, or ~/.kokoro.
func NewPaths() (*Paths, error) {
	if root := os.Getenv(HomeEnv); root != "" {
		return &Paths{Root: root}, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}
	return &Paths{Root: filepath.Join(home, DefaultBaseDir)}, nil
}

// ConfigFile returns ~/.kokoro/config.yaml
func (p *Paths) ConfigFile() string {
	return filepath.Join(p.Root, DefaultConfigFile)
}

// CacheDir returns the phoneme cache directory (~/.kokoro/cache)
func (p *Paths) CacheDir() string {
	return filepath.Join(p.Root, "cache")
}

// LogDir returns ~/.kokoro/logs
func (p *Paths) LogDir() string {
	return filepath.Join(p.Root, "logs")
}

// LogFile returns the default log file path
func (p *Paths) LogFile() string {
	return filepath.Join(p.LogDir(), "kokoro.log")
}

// DataDir returns ~/.kokoro/data
func (p *Paths) DataDir() string {
	return filepath.Join(p.Root, "data")
}

// ArtifactsDB returns the artifact ledger database path
func (p *Paths) ArtifactsDB() string {
	return filepath.Join(p.DataDir(), "artifacts.db")
}

// Ensure creates the base, cache, log and data directories
func (p *Paths) Ensure() error {
	for _, dir := range []string{p.Root, p.CacheDir(), p.LogDir(), p.DataDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
