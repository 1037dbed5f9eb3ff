package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"

	tfllm "github.com/tfllm/tfllm"
	defaults "github.com/tfllm/tfllm/default"
)

// Manifest maps quantization tags to downloadable model artifacts.
type Manifest struct {
	Artifacts map[string]Artifact `toml:"artifacts"`
}

// Artifact describes one model file variant.
type Artifact struct {
	URL      string `toml:"url"`
	Filename string `toml:"filename"`
	SHA256   string `toml:"sha256"`
}

// Quants returns the manifest's quantization tags, sorted.
func (m *Manifest) Quants() []string {
	quants := make([]string, 0, len(m.Artifacts))
	for q := range m.Artifacts {
		quants = append(quants, q)
	}
	sort.Strings(quants)
	return quants
}

// LoadManifest returns the user manifest from the config directory when
// present, otherwise the embedded default.
func LoadManifest() (*Manifest, error) {
	path := filepath.Join(tfllm.ConfigDir(), "models.toml")
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		data = defaults.ModelManifestTOML
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse model manifest: %w", err)
	}
	if len(m.Artifacts) == 0 {
		return nil, fmt.Errorf("model manifest has no artifacts")
	}
	return &m, nil
}

// Ensure resolves the quant tag through the manifest and makes sure the
// artifact is present under destDir, downloading it if necessary. It
// returns the local artifact path.
func (m *Manifest) Ensure(ctx context.Context, quant, destDir string) (string, error) {
	art, ok := m.Artifacts[quant]
	if !ok {
		return "", fmt.Errorf("unknown quantization %q (have: %s)", quant, strings.Join(m.Quants(), ", "))
	}

	path := filepath.Join(destDir, art.Filename)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return "", err
	}

	slog.Info("downloading model", "quant", quant, "url", art.URL)
	if err := download(ctx, art, path); err != nil {
		return "", fmt.Errorf("download %s: %w", quant, err)
	}
	return path, nil
}

// Ensure is the common path for CLI and daemon: manifest lookup against the
// data directory's models folder.
func Ensure(ctx context.Context, quant string) (string, error) {
	m, err := LoadManifest()
	if err != nil {
		return "", err
	}
	return m.Ensure(ctx, quant, filepath.Join(tfllm.DataDir(), "models"))
}

// download streams the artifact to a temp file, verifying the digest when
// the manifest provides one, then moves it into place.
func download(ctx context.Context, art Artifact, dest string) error {
	req, err := http.NewRequestWithContext(ctx, "GET", art.URL, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	hasher := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if art.SHA256 != "" {
		sum := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(sum, art.SHA256) {
			return fmt.Errorf("checksum mismatch: got %s, want %s", sum, art.SHA256)
		}
	}

	return os.Rename(tmp.Name(), dest)
}
