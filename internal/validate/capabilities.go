package validate

import "os/exec"

// Capabilities records which optional processing backends are present.
// Detected once at process start and passed through, so degraded-mode
// behavior is explicit instead of probed ad hoc per job.
type Capabilities struct {
	HasFFmpeg     bool // video thumbnail extraction
	HasVideoProbe bool // ffprobe metadata extraction
	HasMeshLoader bool // full 3D mesh parsing (vertex/face counts beyond format checks)
	Has3DRenderer bool // multi-angle preview renders
}

// DetectCapabilities checks PATH for the external tools each backend
// needs. No in-process mesh loader is wired, so HasMeshLoader stays false
// and 3D validation degrades to format-only checks.
func DetectCapabilities() Capabilities {
	return Capabilities{
		HasFFmpeg:     lookPathOK("ffmpeg"),
		HasVideoProbe: lookPathOK("ffprobe"),
		HasMeshLoader: false,
		Has3DRenderer: lookPathOK("blender"),
	}
}

func lookPathOK(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
