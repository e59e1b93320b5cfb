package validate

import (
	"bytes"
	"fmt"
	"image"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

var allowedImageFormats = map[string]bool{
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// validateImage decodes only the header. The declared extension does not
// have to match the decoded format as long as both are allowed; a .jpg
// containing PNG bytes passes, a .jpg containing text does not.
func (v *Validator) validateImage(data []byte) Result {
	if int64(len(data)) > v.limits.MaxImageBytes {
		return invalid(ledger.KindImage, fmt.Sprintf("image exceeds maximum size of %d bytes", v.limits.MaxImageBytes))
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return invalid(ledger.KindImage, "unrecognized or corrupt image data")
	}
	if !allowedImageFormats[format] {
		return invalid(ledger.KindImage, "unsupported image format: "+format)
	}
	if cfg.Width > v.limits.MaxImageWidth || cfg.Height > v.limits.MaxImageHeight {
		return invalid(ledger.KindImage, fmt.Sprintf("image dimensions %dx%d exceed maximum %dx%d",
			cfg.Width, cfg.Height, v.limits.MaxImageWidth, v.limits.MaxImageHeight))
	}

	return Result{
		Valid:     true,
		MediaKind: ledger.KindImage,
		Width:     cfg.Width,
		Height:    cfg.Height,
		Facts: map[string]any{
			"format": format,
			"width":  cfg.Width,
			"height": cfg.Height,
		},
	}
}
