package variants

import "context"

// PreviewRenderer produces multi-angle preview renders for a 3D model.
// Preview generation is best-effort: without a rendering backend the job
// completes with the preview list simply omitted.
type PreviewRenderer interface {
	RenderPreviews(ctx context.Context, modelPath, filename string) ([]Artifact, error)
}

// NoRenderer is the degraded-mode renderer used when no backend is
// available. It renders nothing and never fails.
type NoRenderer struct{}

func (NoRenderer) RenderPreviews(context.Context, string, string) ([]Artifact, error) {
	return nil, nil
}
