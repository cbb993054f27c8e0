package domain

import "time"

// ProcessingStep represents one stage of the document processing pipeline
type ProcessingStep string

const (
	StepPending               ProcessingStep = "pending"
	StepParsing               ProcessingStep = "parsing"
	StepExtractingImages      ProcessingStep = "extracting_images"
	StepStructuring           ProcessingStep = "structuring"
	StepCategorizing          ProcessingStep = "categorizing"
	StepExtractingQuestions   ProcessingStep = "extracting_questions"
	StepCategorizingQuestions ProcessingStep = "categorizing_questions"
	StepCompleted             ProcessingStep = "completed"
	StepFailed                ProcessingStep = "failed"
)

// Terminal reports whether no further transitions are expected
func (s ProcessingStep) Terminal() bool {
	return s == StepCompleted || s == StepFailed
}

// DisplayName returns a human-readable label for the step
func (s ProcessingStep) DisplayName() string {
	switch s {
	case StepPending:
		return "Queued"
	case StepParsing:
		return "Parsing document"
	case StepExtractingImages:
		return "Extracting images"
	case StepStructuring:
		return "Structuring content"
	case StepCategorizing:
		return "Categorizing content"
	case StepExtractingQuestions:
		return "Extracting questions"
	case StepCategorizingQuestions:
		return "Categorizing questions"
	case StepCompleted:
		return "Completed"
	case StepFailed:
		return "Failed"
	default:
		return string(s)
	}
}

// ProcessingItem is one tracked upload working its way through the pipeline.
// Owned exclusively by the processing tracker.
type ProcessingItem struct {
	ID           string         `json:"id"`
	DisplayName  string         `json:"display_name"`
	CurrentStep  ProcessingStep `json:"current_step"`
	Failed       bool           `json:"failed"`
	ErrorMessage string         `json:"error_message,omitempty"`
	JobID        string         `json:"job_id,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// JobStatus is the response of the job status and retry endpoints
type JobStatus struct {
	ID           string `json:"id"`
	ArtifactID   string `json:"artifact_id"`
	Status       string `json:"status"`
	CurrentStep  string `json:"current_step,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	RetryCount   int    `json:"retry_count,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	CompletedAt  string `json:"completed_at,omitempty"`
}

// Artifact is a document record as returned by the backend
type Artifact struct {
	ID               string `json:"id"`
	ArtifactName     string `json:"artifact_name"`
	ArtifactType     string `json:"artifact_type"`
	SourceType       string `json:"source_type,omitempty"`
	StoragePath      string `json:"storage_path,omitempty"`
	IsProcessed      bool   `json:"is_processed"`
	ProcessingFailed bool   `json:"processing_failed"`
	ProcessingError  string `json:"processing_error,omitempty"`
	CreatedAt        string `json:"created_at,omitempty"`
	JobID            string `json:"job_id,omitempty"`
	JobStatus        string `json:"job_status,omitempty"`
	ErrorMessage     string `json:"error_message,omitempty"`
}

// ItemFromArtifact builds a tracked processing item from an artifact record
func ItemFromArtifact(a Artifact) ProcessingItem {
	step := StepPending
	if a.JobStatus != "" {
		step = ProcessingStep(a.JobStatus)
	}

	createdAt, _ := time.Parse(time.RFC3339, a.CreatedAt)

	return ProcessingItem{
		ID:           a.ID,
		DisplayName:  a.ArtifactName,
		CurrentStep:  step,
		Failed:       a.ProcessingFailed,
		ErrorMessage: a.ProcessingError,
		JobID:        a.JobID,
		CreatedAt:    createdAt,
	}
}
