// Package schema defines the wire types exchanged over the task queue
// between the submission path and the variant workers.
package schema

type ProcessingStage string

const (
	StageValidation ProcessingStage = "validation"
	StageProcessing ProcessingStage = "processing"
	StagePersist    ProcessingStage = "persist"
	StageCompleted  ProcessingStage = "completed"
	StageFailed     ProcessingStage = "failed"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// VariantJob is the payload enqueued once an upload's original has been
// persisted. The worker regenerates every variant for the upload with
// deterministic naming, so replaying the same job is safe.
type VariantJob struct {
	UploadID     string `json:"upload_id"`
	WorkspaceID  string `json:"workspace_id"`
	MediaKind    string `json:"media_kind"`
	OriginalPath string `json:"original_path"`
	Filename     string `json:"filename"`
	HappenedAt   int64  `json:"happened_at"`
}

// VariantResult reports the outcome of one derived artifact.
type VariantResult struct {
	Name             string `json:"name"`
	Path             string `json:"path,omitempty"`
	URL              string `json:"url,omitempty"`
	Width            int    `json:"width,omitempty"`
	Height           int    `json:"height,omitempty"`
	Status           string `json:"status"`
	Error            string `json:"error,omitempty"`
	ProcessingTimeMs int64  `json:"processing_time_ms,omitempty"`
}

// JobDone is published when the worker finishes an upload, successfully
// or not.
type JobDone struct {
	UploadID         string          `json:"upload_id"`
	WorkspaceID      string          `json:"workspace_id"`
	Stage            ProcessingStage `json:"stage"`
	TotalProcessed   int             `json:"total_processed"`
	TotalFailed      int             `json:"total_failed"`
	ProcessingTimeMs int64           `json:"processing_time_ms"`
	Results          []VariantResult `json:"results,omitempty"`
	Error            string          `json:"error,omitempty"`
	FailureType      FailureType     `json:"failure_type,omitempty"`
	HappenedAt       int64           `json:"happened_at"`
}
