package variants

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"github.com/shopcraft/media-pipeline/internal/ledger"
	"github.com/shopcraft/media-pipeline/internal/objectkey"
)

const (
	// OptimizedMaxEdge bounds the longest edge of the optimized variant.
	// JPEG sources already within the bound are reused as-is.
	OptimizedMaxEdge = 1200
	ThumbnailSize    = 300
	TinySize         = 150

	jpegQuality = 85
	webpQuality = 85
)

// ImageVariants produces the full raster variant set from the original
// bytes. A single variant's encode failure lands in the failure list and
// never aborts the others; only an undecodable source is fatal.
func ImageVariants(src []byte, filename string) ([]Artifact, []Failure, error) {
	decoded, err := imaging.Decode(bytes.NewReader(src), imaging.AutoOrientation(true))
	if err != nil {
		return nil, nil, fmt.Errorf("decode source image: %w", err)
	}
	_, srcFormat, _ := image.DecodeConfig(bytes.NewReader(src))
	base := normalize(decoded)
	bounds := base.Bounds()

	var artifacts []Artifact
	var failures []Failure
	emit := func(name, version string, img image.Image, reuse []byte) {
		jpegName, webpName := name, name+"_webp"
		if reuse != nil {
			artifacts = append(artifacts, Artifact{
				Name: jpegName, Version: version, Filename: jpegFilename(filename),
				Data: reuse, ContentType: "image/jpeg",
				Width: img.Bounds().Dx(), Height: img.Bounds().Dy(),
			})
		} else {
			data, err := encodeJPEG(img)
			if err != nil {
				failures = append(failures, Failure{Name: jpegName, Err: err})
			} else {
				artifacts = append(artifacts, Artifact{
					Name: jpegName, Version: version, Filename: jpegFilename(filename),
					Data: data, ContentType: "image/jpeg",
					Width: img.Bounds().Dx(), Height: img.Bounds().Dy(),
				})
			}
		}
		data, err := encodeWebP(img)
		if err != nil {
			failures = append(failures, Failure{Name: webpName, Err: err})
		} else {
			artifacts = append(artifacts, Artifact{
				Name: webpName, Version: version, Filename: webpFilename(filename),
				Data: data, ContentType: "image/webp",
				Width: img.Bounds().Dx(), Height: img.Bounds().Dy(),
			})
		}
	}

	switch {
	case bounds.Dx() > OptimizedMaxEdge || bounds.Dy() > OptimizedMaxEdge:
		resized := imaging.Fit(base, OptimizedMaxEdge, OptimizedMaxEdge, imaging.Lanczos)
		emit(ledger.VariantOptimized, objectkey.VersionOptimized, resized, nil)
	case srcFormat == "jpeg":
		// A JPEG already within bounds is reused as the optimized artifact
		// rather than re-encoded. Other formats are still transcoded so the
		// artifact's bytes match its jpeg name and content type.
		emit(ledger.VariantOptimized, objectkey.VersionOptimized, base, src)
	default:
		emit(ledger.VariantOptimized, objectkey.VersionOptimized, base, nil)
	}

	thumb := imaging.Fill(base, ThumbnailSize, ThumbnailSize, imaging.Center, imaging.Lanczos)
	emit(ledger.VariantThumbnail, objectkey.VersionThumbnail, thumb, nil)

	tiny := imaging.Fill(base, TinySize, TinySize, imaging.Center, imaging.Lanczos)
	emit(ledger.VariantTiny, objectkey.VersionTiny, tiny, nil)

	return artifacts, failures, nil
}

// normalize flattens alpha and palette images onto a white background and
// returns a plain 3-channel-equivalent NRGBA image.
func normalize(src image.Image) *image.NRGBA {
	bounds := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, bounds.Min, draw.Over)
	return dst
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image) ([]byte, error) {
	opts, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, webpQuality)
	if err != nil {
		return nil, fmt.Errorf("webp encoder options: %w", err)
	}
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, opts); err != nil {
		return nil, fmt.Errorf("encode webp: %w", err)
	}
	return buf.Bytes(), nil
}
