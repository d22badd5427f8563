// Package scan is the FileScanner component: walks a folder or iterates
// an archive and emits image descriptors, delegating format detection and
// dimension probing to internal/imagecodec and archive enumeration to
// internal/archive.
package scan

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/antti/imagevault/internal/archive"
	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/imagecodec"
)

// ImageDescriptor is what a scan emits per discovered image, before a
// collections.ID has been assigned.
type ImageDescriptor struct {
	Filename     string
	RelativePath string
	FileSize     int64
	Width        int
	Height       int
	Format       string
	Metadata     *collections.ImageMetadata
}

// ScanFolder depth-first walks root, filters by supported extension, and
// probes each candidate file. Unreadable entries and corrupt images are
// WARN-logged and skipped; a scan never fails outright because of one
// bad file.
func ScanFolder(ctx context.Context, root string) ([]ImageDescriptor, error) {
	var descriptors []ImageDescriptor

	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			slog.Warn("scan: unreadable entry", "path", path, "error", err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !imagecodec.IsSupportedExt(filepath.Ext(path)) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			slog.Warn("scan: stat failed", "path", path, "error", err)
			return nil
		}

		dims, err := imagecodec.ProbePath(ctx, path)
		if err != nil {
			slog.Warn("scan: corrupt image skipped", "path", path, "error", err)
			return nil
		}

		meta, err := imagecodec.ExtractMetadata(ctx, path)
		if err != nil {
			meta = nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}

		descriptors = append(descriptors, ImageDescriptor{
			Filename:     filepath.Base(path),
			RelativePath: rel,
			FileSize:     info.Size(),
			Width:        dims.Width,
			Height:       dims.Height,
			Format:       dims.Format,
			Metadata:     meta,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return descriptors, nil
}

// ScanArchive iterates archivePath via internal/archive, materializing
// each entry to a scratch buffer just long enough to probe it before
// discarding the bytes.
func ScanArchive(ctx context.Context, archivePath string) ([]ImageDescriptor, error) {
	r, err := archive.Open(archivePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	entries, err := r.Entries()
	if err != nil {
		return nil, err
	}

	var descriptors []ImageDescriptor
	for _, entry := range entries {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !imagecodec.IsSupportedExt(filepath.Ext(entry.Name)) {
			continue
		}

		rs, err := entry.Open()
		if err != nil {
			slog.Warn("scan: unreadable archive entry", "name", entry.Name, "error", err)
			continue
		}

		dims, err := imagecodec.Probe(ctx, rs)
		if err != nil {
			slog.Warn("scan: corrupt archive image skipped", "name", entry.Name, "error", err)
			continue
		}
		if seeker, ok := rs.(io.Seeker); ok {
			_, _ = seeker.Seek(0, io.SeekStart)
		}

		descriptors = append(descriptors, ImageDescriptor{
			Filename:     filepath.Base(entry.Name),
			RelativePath: entry.Name,
			FileSize:     entry.Size,
			Width:        dims.Width,
			Height:       dims.Height,
			Format:       dims.Format,
		})
	}

	return descriptors, nil
}

// DetectType classifies path as a CollectionType by
// directory-vs-extension.
func DetectType(path string) collections.Type {
	info, err := os.Stat(path)
	if err == nil && info.IsDir() {
		return collections.TypeFolder
	}

	lower := strings.ToLower(path)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return collections.TypeZip
	case strings.HasSuffix(lower, ".7z"):
		return collections.TypeSevenZip
	case strings.HasSuffix(lower, ".rar"):
		return collections.TypeRar
	case strings.HasSuffix(lower, ".tar"), strings.HasSuffix(lower, ".tar.gz"),
		strings.HasSuffix(lower, ".tgz"), strings.HasSuffix(lower, ".tar.bz2"),
		strings.HasSuffix(lower, ".tbz2"):
		return collections.TypeTar
	default:
		return collections.TypeFolder
	}
}

// IsValidCollectionPath reports whether path exists and is either a
// directory or a recognized archive extension.
func IsValidCollectionPath(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	if info.IsDir() {
		return true
	}
	return archive.Ext(filepath.Ext(path)) || strings.HasSuffix(strings.ToLower(path), ".tar.gz") || strings.HasSuffix(strings.ToLower(path), ".tar.bz2")
}
