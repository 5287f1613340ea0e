package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
)

var (
	ErrUnknownModel = errors.New("unknown model")
	ErrNotInstalled = errors.New("model not installed")
)

// ProgressFunc is called during download with bytes downloaded and total.
type ProgressFunc func(downloaded, total int64)

// Catalog manages downloaded models under Dir.
type Catalog struct {
	Dir     string
	BaseURL string
	Client  *http.Client
}

// NewCatalog stores models in dir and downloads from DefaultBaseURL.
func NewCatalog(dir string) *Catalog {
	return &Catalog{Dir: dir, BaseURL: DefaultBaseURL, Client: http.DefaultClient}
}

func (c *Catalog) Path(id string) (string, error) {
	info, ok := Lookup(id)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	return filepath.Join(c.Dir, info.Filename), nil
}

func (c *Catalog) IsInstalled(id string) bool {
	path, err := c.Path(id)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Size() > 0
}

// Installed returns the IDs of downloaded models.
func (c *Catalog) Installed() []string {
	var out []string
	for _, m := range models {
		if c.IsInstalled(m.ID) {
			out = append(out, m.ID)
		}
	}
	return out
}

// Resolve turns a fallback model reference into a file path. A catalog ID
// must already be downloaded; anything else is treated as a path.
func (c *Catalog) Resolve(ref string) (string, error) {
	if !IsModelID(ref) {
		return ref, nil
	}
	if !c.IsInstalled(ref) {
		return "", fmt.Errorf("%w: %s (run `livescribe models download %s`)", ErrNotInstalled, ref, ref)
	}
	return c.Path(ref)
}

// Download fetches a model into Dir. The file only appears under its final
// name once fully written.
func (c *Catalog) Download(ctx context.Context, id string, onProgress ProgressFunc) error {
	info, ok := Lookup(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownModel, id)
	}
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create models directory: %w", err)
	}

	destPath := filepath.Join(c.Dir, info.Filename)
	tempPath := destPath + ".downloading"

	out, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer func() {
		out.Close()
		os.Remove(tempPath)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/"+info.Filename, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download failed with status: %s", resp.Status)
	}

	total := resp.ContentLength
	if total < 0 {
		total = info.SizeBytes
	}

	var body io.Reader = resp.Body
	if onProgress != nil {
		body = &progressReader{r: resp.Body, total: total, fn: onProgress}
	}
	if _, err := io.Copy(out, body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("failed to write model: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return fmt.Errorf("failed to finalize download: %w", err)
	}
	return nil
}

func (c *Catalog) Remove(id string) error {
	path, err := c.Path(id)
	if err != nil {
		return err
	}
	if !c.IsInstalled(id) {
		return fmt.Errorf("%w: %s", ErrNotInstalled, id)
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove model: %w", err)
	}
	return nil
}

type progressReader struct {
	r     io.Reader
	done  int64
	total int64
	fn    ProgressFunc
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		p.fn(p.done, p.total)
	}
	return n, err
}
