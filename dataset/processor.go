package dataset

import (
	"context"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"gitlab.uncharted.software/WM/lora-campaign/jsonl"
	"go.uber.org/zap"
)

// DefaultQuality is the JPEG quality of normalized images.
const DefaultQuality = 92

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// Layout is the directory structure of a dataset.
type Layout struct {
	Root string
}

// CleanDir holds normalized images.
func (l Layout) CleanDir() string { return filepath.Join(l.Root, "clean") }

// CaptionsDir holds one caption .txt per image.
func (l Layout) CaptionsDir() string { return filepath.Join(l.Root, "captions") }

// PromptsDir holds one .prompt.txt per image.
func (l Layout) PromptsDir() string { return filepath.Join(l.Root, "prompts") }

// MetaPath is the append-only metadata log.
func (l Layout) MetaPath() string { return filepath.Join(l.Root, "meta", "meta.jsonl") }

// Prepare creates the dataset directories.
func (l Layout) Prepare() error {
	for _, dir := range []string{l.CleanDir(), l.CaptionsDir(), l.PromptsDir(), filepath.Dir(l.MetaPath())} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create %s", dir)
		}
	}
	return nil
}

// Entry is one line of the metadata log.
type Entry struct {
	// Path of the clean image relative to the dataset root.
	Path    string   `json:"path"`
	Caption string   `json:"caption"`
	Prompt  string   `json:"prompt"`
	Style   []string `json:"style"`
	AR      string   `json:"ar"`
	PHash   string   `json:"phash"`
	Source  string   `json:"source"`
	Notes   string   `json:"notes"`
	// Captioner names the captioner that produced the entry.
	Captioner string `json:"captioner,omitempty"`
}

// Summary counts the results of processing a directory.
type Summary struct {
	Found     int
	Processed int
	Failed    int
	Fallbacks int
}

// Processor turns raw images into dataset entries.
type Processor struct {
	// Captioner is the remote captioner.  When nil every image gets a fallback caption.
	Captioner Captioner
	Fallback  *FallbackCaptioner
	Layout    Layout
	Quality   int
	Note      string
	Logger    *zap.SugaredLogger
}

func (p *Processor) defaults() {
	if p.Quality <= 0 {
		p.Quality = DefaultQuality
	}
	if p.Fallback == nil {
		p.Fallback = &FallbackCaptioner{}
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop().Sugar()
	}
}

// ProcessImage hashes, normalizes and captions the image at path, writes its caption and
// prompt files and appends it to the metadata log.  Reprocessing an image writes the same
// files again under the same name.
func (p *Processor) ProcessImage(ctx context.Context, path string) (*Entry, error) {
	p.defaults()

	img, err := DecodeFile(path)
	if err != nil {
		return nil, err
	}
	phash, err := PerceptualHash(img)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to hash %s", path)
	}
	normalized, err := Normalize(img, p.Quality)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to normalize %s", path)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + "-" + phash
	cleanPath := filepath.Join(p.Layout.CleanDir(), stem+".jpg")
	if err := ioutil.WriteFile(cleanPath, normalized.Data, 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", cleanPath)
	}

	md, source := p.caption(ctx, path, normalized)

	captionPath := filepath.Join(p.Layout.CaptionsDir(), stem+".txt")
	if err := ioutil.WriteFile(captionPath, []byte(md.Caption), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", captionPath)
	}
	promptPath := filepath.Join(p.Layout.PromptsDir(), stem+".prompt.txt")
	if err := ioutil.WriteFile(promptPath, []byte(md.RecreationPrompt), 0o644); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", promptPath)
	}

	rel, err := filepath.Rel(p.Layout.Root, cleanPath)
	if err != nil {
		rel = cleanPath
	}
	entry := &Entry{
		Path:      filepath.ToSlash(rel),
		Caption:   md.Caption,
		Prompt:    md.RecreationPrompt,
		Style:     md.Style,
		AR:        md.AR,
		PHash:     phash,
		Source:    path,
		Notes:     p.Note,
		Captioner: source,
	}
	if err := jsonl.Append(p.Layout.MetaPath(), entry); err != nil {
		return nil, err
	}
	return entry, nil
}

func (p *Processor) caption(ctx context.Context, path string, img NormalizedImage) (*Metadata, string) {
	if p.Captioner != nil {
		md, err := p.Captioner.Caption(ctx, img)
		if err == nil {
			return md, p.Captioner.Name()
		}
		p.Logger.Warnf("%s captioning failed for %s, using fallback caption: %v", p.Captioner.Name(), path, err)
	}
	md, _ := p.Fallback.Caption(ctx, img)
	return md, p.Fallback.Name()
}

// ListImages returns the image files directly inside dir in name order.
func ListImages(dir string) ([]string, error) {
	infos, err := ioutil.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %s", dir)
	}
	var paths []string
	for _, info := range infos {
		if info.IsDir() || !imageExtensions[strings.ToLower(filepath.Ext(info.Name()))] {
			continue
		}
		paths = append(paths, filepath.Join(dir, info.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// ProcessDir processes up to limit images from dir (all of them when limit <= 0).  A failed
// image is logged and skipped.  The error is only set for an unreadable directory or a
// cancelled context.
func (p *Processor) ProcessDir(ctx context.Context, dir string, limit int) (Summary, error) {
	p.defaults()
	var summary Summary

	paths, err := ListImages(dir)
	if err != nil {
		return summary, err
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}
	summary.Found = len(paths)
	if err := p.Layout.Prepare(); err != nil {
		return summary, err
	}

	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return summary, errors.Wrap(err, "captioning stopped")
		}
		p.Logger.Infof("Processing: %s", filepath.Base(path))
		entry, err := p.ProcessImage(ctx, path)
		if err != nil {
			summary.Failed++
			p.Logger.Errorf("Error processing %s: %v", path, err)
			continue
		}
		summary.Processed++
		if entry.Captioner == fallbackName {
			summary.Fallbacks++
		}
		p.Logger.Infow("Image captioned", "path", entry.Path, "phash", entry.PHash, "ar", entry.AR, "captioner", entry.Captioner)
	}
	return summary, nil
}
