// Package preview renders small stretched PNG previews of accepted
// exposures so a session can be eyeballed without astro software.
package preview

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/gographics/imagick.v3/imagick"
)

// Generator writes PNG previews into a fixed directory.
type Generator struct {
	dir      string
	maxWidth uint
	log      *slog.Logger
}

// NewGenerator creates a Generator writing previews under dir.
func NewGenerator(dir string, maxWidth uint, log *slog.Logger) *Generator {
	if maxWidth == 0 {
		maxWidth = 1024
	}
	return &Generator{dir: dir, maxWidth: maxWidth, log: log}
}

// Generate renders one preview for the exposure at path. Failures only
// affect the preview, never the frame itself.
func (g *Generator) Generate(path string) error {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return err
	}

	imagick.Initialize()
	defer imagick.Terminate()

	wand := imagick.NewMagickWand()
	defer wand.Destroy()

	if err := wand.ReadImage(path); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	// Linear FITS data is nearly black; auto-level and gamma bring the
	// faint signal into view.
	if err := wand.AutoLevelImage(); err != nil {
		return err
	}
	if err := wand.GammaImage(2.2); err != nil {
		return err
	}

	if w := wand.GetImageWidth(); w > g.maxWidth {
		h := wand.GetImageHeight() * g.maxWidth / w
		if err := wand.ResizeImage(g.maxWidth, h, imagick.FILTER_LANCZOS); err != nil {
			return err
		}
	}

	if err := wand.SetImageFormat("PNG"); err != nil {
		return err
	}

	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".png"
	out := filepath.Join(g.dir, name)
	if err := wand.WriteImage(out); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}
	g.log.Debug("preview written", "source", path, "preview", out)
	return nil
}
