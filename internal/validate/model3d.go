package validate

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path"
	"strings"

	"github.com/shopcraft/media-pipeline/internal/ledger"
)

// glbMagic is the 4-byte header every binary glTF file starts with.
var glbMagic = []byte("glTF")

// validateModel runs format-specific structural checks. Full mesh loading
// (watertightness, precise vertex counts for FBX/USDZ) needs a mesh
// loader; without one validation degrades to the format checks below.
func (v *Validator) validateModel(data []byte, filename string) Result {
	size := int64(len(data))
	if size < v.limits.MinModelBytes {
		return invalid(ledger.Kind3DModel, "model file smaller than minimum size")
	}
	if size > v.limits.MaxModelBytes {
		return invalid(ledger.Kind3DModel, fmt.Sprintf("model exceeds maximum size of %d bytes", v.limits.MaxModelBytes))
	}

	ext := strings.ToLower(strings.TrimPrefix(path.Ext(filename), "."))
	switch ext {
	case "gltf":
		return validateGLTF(data)
	case "glb":
		return validateGLB(data)
	case "obj":
		return validateOBJ(data)
	default:
		// fbx, usdz: format-only validation without a mesh loader.
		return Result{
			Valid:     true,
			MediaKind: ledger.Kind3DModel,
			Facts:     map[string]any{"format": ext, "mesh_validation_skipped": true},
		}
	}
}

func validateGLTF(data []byte) Result {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return invalid(ledger.Kind3DModel, "glTF is not valid JSON")
	}
	if _, ok := doc["asset"]; !ok {
		return invalid(ledger.Kind3DModel, "glTF missing required asset key")
	}
	facts := map[string]any{"format": "gltf"}
	if meshes, ok := doc["meshes"]; ok {
		var list []json.RawMessage
		if json.Unmarshal(meshes, &list) == nil {
			facts["mesh_count"] = len(list)
		}
	}
	if materials, ok := doc["materials"]; ok {
		var list []json.RawMessage
		if json.Unmarshal(materials, &list) == nil {
			facts["material_count"] = len(list)
		}
	}
	return Result{Valid: true, MediaKind: ledger.Kind3DModel, Facts: facts}
}

func validateGLB(data []byte) Result {
	if len(data) < 12 || !bytes.Equal(data[:4], glbMagic) {
		return invalid(ledger.Kind3DModel, "GLB missing glTF magic header")
	}
	version := binary.LittleEndian.Uint32(data[4:8])
	declared := binary.LittleEndian.Uint32(data[8:12])
	return Result{
		Valid:     true,
		MediaKind: ledger.Kind3DModel,
		Facts: map[string]any{
			"format":          "glb",
			"gltf_version":    version,
			"declared_length": declared,
		},
	}
}

// validateOBJ counts vertex, face and material lines as a cheap structural
// proxy. A zero count is still minimally valid.
func validateOBJ(data []byte) Result {
	var vertices, faces, materials int
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "v "):
			vertices++
		case strings.HasPrefix(line, "f "):
			faces++
		case strings.HasPrefix(line, "usemtl "):
			materials++
		}
	}
	return Result{
		Valid:     true,
		MediaKind: ledger.Kind3DModel,
		Facts: map[string]any{
			"format":         "obj",
			"vertex_count":   vertices,
			"face_count":     faces,
			"material_count": materials,
		},
	}
}
