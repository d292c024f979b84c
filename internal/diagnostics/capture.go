// Package diagnostics persists failure artifacts: a screenshot of the page
// at the moment a locator resolution exhausted its strategies, plus the full
// attempt log as JSON next to it. Capture is fire-and-forget; nothing that
// goes wrong here is allowed to surface as a resolution failure.
package diagnostics

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/lancet/internal/driver"
	"github.com/xkilldash9x/lancet/internal/locator"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Capturer implements locator.DiagnosticSink by writing PNG + JSON artifacts
// into a directory.
type Capturer struct {
	shooter     driver.Screenshotter
	dir         string
	screenshots bool
	logger      *zap.Logger
}

var _ locator.DiagnosticSink = (*Capturer)(nil)

// NewCapturer builds a Capturer. A nil shooter or screenshots=false keeps
// the attempt-log JSON but skips the PNG.
func NewCapturer(shooter driver.Screenshotter, dir string, screenshots bool, logger *zap.Logger) *Capturer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Capturer{
		shooter:     shooter,
		dir:         dir,
		screenshots: screenshots,
		logger:      logger.Named("diagnostics"),
	}
}

// Capture implements locator.DiagnosticSink.
func (c *Capturer) Capture(ctx context.Context, tag string, attempts []locator.Attempt) {
	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		c.logger.Warn("Failed to create diagnostics directory.", zap.String("dir", c.dir), zap.Error(err))
		return
	}

	base := fmt.Sprintf("locator_failure_%s_%s_%s",
		sanitize(tag),
		time.Now().Format("20060102_150405"),
		uuid.New().String()[:8])

	c.writeAttemptLog(base, tag, attempts)

	if !c.screenshots || c.shooter == nil {
		return
	}
	img, err := c.shooter.Screenshot(ctx)
	if err != nil {
		c.logger.Warn("Failed to capture failure screenshot.", zap.String("element", tag), zap.Error(err))
		return
	}
	path := filepath.Join(c.dir, base+".png")
	if err := os.WriteFile(path, img, 0o644); err != nil {
		c.logger.Warn("Failed to write failure screenshot.", zap.String("path", path), zap.Error(err))
		return
	}
	c.logger.Info("Failure screenshot saved.", zap.String("path", path))
}

// attemptLog is the JSON artifact written beside the screenshot.
type attemptLog struct {
	Element    string            `json:"element"`
	CapturedAt time.Time         `json:"captured_at"`
	Attempts   []locator.Attempt `json:"attempts"`
}

func (c *Capturer) writeAttemptLog(base, tag string, attempts []locator.Attempt) {
	payload, err := json.MarshalIndent(attemptLog{
		Element:    tag,
		CapturedAt: time.Now(),
		Attempts:   attempts,
	}, "", "  ")
	if err != nil {
		c.logger.Warn("Failed to encode attempt log.", zap.Error(err))
		return
	}
	path := filepath.Join(c.dir, base+".json")
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		c.logger.Warn("Failed to write attempt log.", zap.String("path", path), zap.Error(err))
	}
}

// sanitize makes an element name safe to embed in a file name.
func sanitize(name string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, name)
}
