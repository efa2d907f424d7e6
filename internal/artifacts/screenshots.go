package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/profiler-e2e/internal/browser"
)

// Screenshot is one captured image
type Screenshot struct {
	Seq  int    `yaml:"seq"`
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Collector numbers and stores screenshots for a run. Sequence numbers
// are allocated before capture, so a failed capture leaves a gap but
// numbering stays strictly increasing.
type Collector struct {
	dir    string
	logger arbor.ILogger

	mu          sync.Mutex
	seq         int
	screenshots []Screenshot
	warnings    []Warning
}

// NewCollector creates a collector writing into dir
func NewCollector(dir string, logger arbor.ILogger) *Collector {
	return &Collector{dir: dir, logger: logger}
}

// Dir returns the screenshot directory
func (c *Collector) Dir() string {
	return c.dir
}

var unsafeName = regexp.MustCompile(`[^a-z0-9_.-]+`)

// sanitizeName lowercases name and replaces anything unsafe in a file name
func sanitizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = unsafeName.ReplaceAllString(name, "_")
	name = strings.Trim(name, "_")
	if name == "" {
		return "screenshot"
	}
	return name
}

// FileName returns the stored file name for a sequence number and name
func FileName(seq int, name string) string {
	return fmt.Sprintf("%02d_%s.png", seq, sanitizeName(name))
}

func (c *Collector) next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	return c.seq
}

func (c *Collector) warn(w Warning) {
	c.mu.Lock()
	c.warnings = append(c.warnings, w)
	c.mu.Unlock()
	c.logger.Warn().Str("op", w.Op).Str("target", w.Target).Err(w.Err).Msg("Artifact not collected")
}

// Capture takes a screenshot of page and stores it as {seq:02d}_{name}.png.
// It returns the file path, or "" when capture or write failed.
func (c *Collector) Capture(ctx context.Context, page browser.Page, name string) string {
	seq := c.next()
	fileName := FileName(seq, name)

	data, err := page.Screenshot(ctx)
	if err != nil {
		c.warn(Warning{Op: "screenshot", Target: fileName, Err: err})
		return ""
	}

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		c.warn(Warning{Op: "screenshot", Target: fileName, Err: fmt.Errorf("failed to create screenshot directory: %w", err)})
		return ""
	}

	path := filepath.Join(c.dir, fileName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		c.warn(Warning{Op: "screenshot", Target: fileName, Err: fmt.Errorf("failed to save screenshot: %w", err)})
		return ""
	}

	c.mu.Lock()
	c.screenshots = append(c.screenshots, Screenshot{Seq: seq, Name: name, Path: path})
	c.mu.Unlock()

	c.logger.Info().Str("file", fileName).Msg("✓ Screenshot saved")
	return path
}

// Warn records a warning raised by another collection step
func (c *Collector) Warn(w Warning) {
	c.warn(w)
}

// Screenshots returns the stored screenshots in capture order
func (c *Collector) Screenshots() []Screenshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Screenshot(nil), c.screenshots...)
}

// Warnings returns every warning recorded so far
func (c *Collector) Warnings() []Warning {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Warning(nil), c.warnings...)
}
