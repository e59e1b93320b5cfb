// Package variants produces derived artifacts from a validated original:
// resized raster encodings, video thumbnails and 3D preview renders.
package variants

import (
	"path"
	"strings"
)

// Artifact is one generated derived file, held in memory until the worker
// writes it through the storage path resolver.
type Artifact struct {
	// Name is the ledger variant key (optimized, thumbnail_webp, ...).
	Name string
	// Version is the storage path folder the artifact belongs to.
	Version string
	// Filename is the name basis handed to the path resolver; its
	// extension decides the stored extension.
	Filename    string
	Data        []byte
	ContentType string
	Width       int
	Height      int
}

// Failure records a single variant that could not be produced. Failures
// are isolated per variant; the job persists whatever succeeded.
type Failure struct {
	Name string
	Err  error
}

func jpegFilename(original string) string {
	return stemOf(original) + ".jpg"
}

func webpFilename(original string) string {
	return stemOf(original) + ".webp"
}

func stemOf(filename string) string {
	base := path.Base(filename)
	return strings.TrimSuffix(base, path.Ext(base))
}
