// Package imagecodec is the image capability the pipeline leans on:
// decode, resize, encode, probe dimensions. Built on
// disintegration/imaging with kolesa-team/go-webp for WebP encode.
package imagecodec

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/corona10/goimagehash"
	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/antti/imagevault/internal/collections"
	"github.com/antti/imagevault/internal/shared"
)

// Format is an output encoding Thumbnail/Resize can produce.
type Format string

const (
	FormatJPEG Format = "jpg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
)

// supportedExt is consulted by FileScanner to decide whether a path is a
// candidate image; probing still happens through Probe.
var supportedExt = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true,
	".bmp": true, ".webp": true, ".tiff": true, ".tif": true,
}

// SupportedFormats lists the extensions this codec recognizes, per §4.1.
func SupportedFormats() []string {
	return []string{"jpg", "jpeg", "png", "gif", "bmp", "webp", "tiff"}
}

// IsSupportedExt reports whether ext (including the leading dot) names a
// decodable format.
func IsSupportedExt(ext string) bool {
	return supportedExt[strings.ToLower(ext)]
}

// Dimensions is the result of Probe.
type Dimensions struct {
	Width  int
	Height int
	Format string
}

// Probe returns an image's dimensions and format without reading pixel
// data, per §4.1's "must never read full files when only dimensions are
// required".
func Probe(ctx context.Context, r io.Reader) (Dimensions, error) {
	cfg, format, err := image.DecodeConfig(r)
	if err != nil {
		if err == image.ErrFormat {
			return Dimensions{}, shared.NewCorruptAssetError(err, "unsupported format")
		}
		return Dimensions{}, shared.NewCorruptAssetError(err, "could not probe image")
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height, Format: format}, nil
}

// ProbePath opens path and probes it, erroring with ErrCorruptAsset if the
// extension is unrecognized or the header cannot be decoded.
func ProbePath(ctx context.Context, path string) (Dimensions, error) {
	if !IsSupportedExt(filepath.Ext(path)) {
		return Dimensions{}, shared.NewCorruptAssetError(nil, "unsupported extension: "+filepath.Ext(path))
	}
	f, err := os.Open(path)
	if err != nil {
		return Dimensions{}, shared.NewTransientError(err, "open image")
	}
	defer f.Close()
	return Probe(ctx, f)
}

// Thumbnail decodes the image at srcPath, fits it within targetW x
// targetH preserving aspect ratio with a high-quality (Lanczos) filter,
// and returns the encoded bytes.
func Thumbnail(ctx context.Context, srcPath string, targetW, targetH int, format Format, quality int) ([]byte, error) {
	return resizeTo(srcPath, targetW, targetH, format, quality, imaging.Fit)
}

// Resize behaves like Thumbnail at arbitrary target size; the two share
// a contract and differ only in who calls them (thumbnail vs. cache
// rendition).
func Resize(ctx context.Context, srcPath string, targetW, targetH int, format Format, quality int) ([]byte, error) {
	return resizeTo(srcPath, targetW, targetH, format, quality, imaging.Fit)
}

func resizeTo(srcPath string, targetW, targetH int, format Format, quality int, fit func(image.Image, int, int, imaging.ResampleFilter) *image.NRGBA) ([]byte, error) {
	src, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "decode source image")
	}

	resized := fit(src, targetW, targetH, imaging.Lanczos)

	var buf bytes.Buffer
	if err := encode(&buf, resized, format, quality); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func encode(w io.Writer, img image.Image, format Format, quality int) error {
	switch format {
	case FormatPNG:
		return png.Encode(w, img)
	case FormatWebP:
		options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
		if err != nil {
			return err
		}
		return webp.Encode(w, img, options)
	default:
		return jpeg.Encode(w, img, &jpeg.Options{Quality: quality})
	}
}

// ExtractMetadata is best-effort: any failure to derive a field leaves it
// at its zero value, and only a total decode failure returns an error.
func ExtractMetadata(ctx context.Context, srcPath string) (*collections.ImageMetadata, error) {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return nil, shared.NewCorruptAssetError(err, "decode source image")
	}

	meta := &collections.ImageMetadata{
		Additional: map[string]string{},
	}

	if hash, err := goimagehash.DifferenceHash(img); err == nil {
		meta.Additional["phash"] = fmt.Sprintf("%x", hash.GetHash())
	}

	if info, err := os.Stat(srcPath); err == nil {
		modified := info.ModTime()
		meta.ModifiedDate = &modified
	}

	return meta, nil
}
