package analyzer

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rafeyhusain/ai-pose-detection/internal/logger"
	"github.com/rafeyhusain/ai-pose-detection/internal/report"
)

// ErrOutput marks a failure to prepare the output folder or write evidence.
var ErrOutput = errors.New("output write failed")

// Options holds settings shared by every analyzer.
type Options struct {
	// OutputRoot relocates evidence folders; empty keeps them next to the input.
	OutputRoot string
	Log        *slog.Logger
}

// OutputFolder returns the evidence folder of analyzer typ for input.
// Without a root it is <dir>/<stem>/<typ>. With a root it is
// <root>/<stem>-<hash>/<typ>, hashed on the absolute input path so inputs
// sharing a stem never collide.
func OutputFolder(input, root, typ string) string {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if root == "" {
		return filepath.Join(filepath.Dir(input), stem, typ)
	}
	abs, err := filepath.Abs(input)
	if err != nil {
		abs = input
	}
	sum := sha1.Sum([]byte(abs))
	return filepath.Join(root, stem+"-"+hex.EncodeToString(sum[:])[:8], typ)
}

// ToTimestamp formats seconds as MM:SS, truncated to whole seconds.
func ToTimestamp(seconds float64) string {
	return report.Timestamp(seconds)
}

// Base implements the output-folder lifecycle shared by analyzers.
type Base struct {
	typ    string
	root   string
	folder string
	log    *slog.Logger
}

func newBase(typ string, opts Options) Base {
	return Base{
		typ:  typ,
		root: opts.OutputRoot,
		log:  logger.WithComponent(logger.OrDiscard(opts.Log), typ),
	}
}

// Type returns the analyzer type.
func (b *Base) Type() string {
	return b.typ
}

// Folder returns the current output folder, empty before Bind.
func (b *Base) Folder() string {
	return b.folder
}

// bindFolder clears and recreates the output folder for input.
func (b *Base) bindFolder(input string) error {
	folder := OutputFolder(input, b.root, b.typ)
	if err := os.RemoveAll(folder); err != nil {
		b.log.Error("Failed to clear output folder", "folder", folder, "error", err)
		return fmt.Errorf("%w: clear %s: %v", ErrOutput, folder, err)
	}
	if err := os.MkdirAll(folder, 0755); err != nil {
		b.log.Error("Failed to create output folder", "folder", folder, "error", err)
		return fmt.Errorf("%w: create %s: %v", ErrOutput, folder, err)
	}
	b.folder = folder
	b.log.Debug("Output folder ready", "folder", folder)
	return nil
}

// SaveFrame writes img as <MM-SS>.png into the output folder. Frames sharing
// a second overwrite each other.
func (b *Base) SaveFrame(img image.Image, timestamp string) (string, error) {
	if b.folder == "" {
		return "", fmt.Errorf("%w: %s analyzer is not bound", ErrOutput, b.typ)
	}
	name := strings.ReplaceAll(timestamp, ":", "-") + ".png"
	path := filepath.Join(b.folder, name)

	// A reader of the folder never sees a half-written image
	f, err := os.CreateTemp(b.folder, ".frame-*.png")
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOutput, err)
	}
	tmp := f.Name()
	if err := png.Encode(f, img); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("%w: encode %s: %v", ErrOutput, path, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrOutput, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("%w: %v", ErrOutput, err)
	}
	return path, nil
}
