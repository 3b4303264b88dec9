// Package dataload discovers classified images under a corpus root directory.
// The directory layout determines each image's classification label.
package dataload

import (
	"io/fs"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/logging"
)

// supportedExtensions lists the image file extensions accepted by discovery.
var supportedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".bmp":  true,
	".tiff": true,
	".tif":  true,
	".webp": true,
}

// ClassifiedImage pairs an image path with its derived classification label.
type ClassifiedImage struct {
	Path           string
	Classification string
}

// ImageInfo holds basic file level information about an image.
type ImageInfo struct {
	Filename  string
	Format    string
	SizeBytes int64
	Exists    bool
}

// Loader discovers classified images under a corpus root.
type Loader struct {
	root      string
	maxDepth  int // 0 means unlimited
	randomize bool
	filter    map[string]bool // nil means no filter
	log       *slog.Logger
}

// NewLoader creates a Loader from the input settings.
func NewLoader(settings *conf.InputSettings) *Loader {
	var filter map[string]bool
	if len(settings.Classifications) > 0 {
		filter = make(map[string]bool, len(settings.Classifications))
		for _, c := range settings.Classifications {
			filter[c] = true
		}
	}

	return &Loader{
		root:      settings.Path,
		maxDepth:  settings.MaxDepth,
		randomize: settings.Randomize,
		filter:    filter,
		log:       logging.ForService("dataload"),
	}
}

// Discover walks the corpus root and returns the ordered list of classified
// images. Unreadable subdirectories are logged and skipped, they never abort
// the walk. When randomization is enabled the returned order is a uniform
// random permutation, otherwise lexical walk order is preserved.
func (l *Loader) Discover() ([]ClassifiedImage, error) {
	if _, err := os.Stat(l.root); err != nil {
		return nil, err
	}

	var images []ClassifiedImage

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			l.log.Warn("skipping unreadable path", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		rel, relErr := filepath.Rel(l.root, path)
		if relErr != nil || rel == "." {
			return nil
		}

		depth := len(strings.Split(filepath.ToSlash(rel), "/"))

		if d.IsDir() {
			// Directories at maxDepth can only contain files beyond the bound.
			if l.maxDepth > 0 && depth >= l.maxDepth {
				return fs.SkipDir
			}
			return nil
		}

		if l.maxDepth > 0 && depth > l.maxDepth {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if !supportedExtensions[ext] {
			return nil
		}

		dirs := relDirComponents(rel)
		classification := ClassifyRelPath(dirs)

		if l.filter != nil && !l.filter[classification] {
			return nil
		}

		images = append(images, ClassifiedImage{
			Path:           path,
			Classification: classification,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if l.randomize {
		rand.Shuffle(len(images), func(i, j int) {
			images[i], images[j] = images[j], images[i]
		})
	}

	l.log.Info("corpus discovery complete",
		"root", l.root,
		"images", len(images),
		"randomized", l.randomize,
	)

	return images, nil
}

// GetImageInfo returns file level information about an image path.
// Missing files yield Exists=false rather than an error.
func (l *Loader) GetImageInfo(path string) ImageInfo {
	info := ImageInfo{
		Filename: filepath.Base(path),
		Format:   strings.ToLower(filepath.Ext(path)),
	}

	stat, err := os.Stat(path)
	if err != nil {
		return info
	}

	info.Exists = true
	info.SizeBytes = stat.Size()
	return info
}

// ClassificationSummary describes one discovered classification.
type ClassificationSummary struct {
	Label    string
	Count    int
	Examples []string
}

// PreviewStructure summarizes the corpus without running any detector:
// per-classification image counts with up to maxExamples example filenames.
func (l *Loader) PreviewStructure(maxExamples int) ([]ClassificationSummary, error) {
	images, err := l.Discover()
	if err != nil {
		return nil, err
	}

	byLabel := make(map[string]*ClassificationSummary)
	for i := range images {
		img := &images[i]
		summary, ok := byLabel[img.Classification]
		if !ok {
			summary = &ClassificationSummary{Label: img.Classification}
			byLabel[img.Classification] = summary
		}
		summary.Count++
		if len(summary.Examples) < maxExamples {
			summary.Examples = append(summary.Examples, filepath.Base(img.Path))
		}
	}

	summaries := make([]ClassificationSummary, 0, len(byLabel))
	for _, s := range byLabel {
		summaries = append(summaries, *s)
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Label < summaries[j].Label })

	return summaries, nil
}

// relDirComponents returns the directory components of a relative file path,
// excluding the file name itself.
func relDirComponents(rel string) []string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) <= 1 {
		return nil
	}
	return parts[:len(parts)-1]
}
