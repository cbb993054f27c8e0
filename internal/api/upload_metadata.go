package api

import "fmt"

// Document categories accepted by the upload endpoint
const (
	CategoryStudy          = "study"
	CategoryExercises      = "exercises"
	CategoryStudyExercises = "study_exercises"
)

// UploadMetadata is the metadata sent alongside a document upload via
// the x-upload-metadata header
type UploadMetadata struct {
	ArtifactName     string   `json:"artifact_name"`
	DocumentCategory string   `json:"document_category"`
	SubjectID        string   `json:"subject_id"`
	YearLevel        string   `json:"year_level,omitempty"`
	YearLevels       []string `json:"year_levels,omitempty"`
	SubjectComponent string   `json:"subject_component,omitempty"`
	Icon             string   `json:"icon,omitempty"`
	IsPublic         bool     `json:"is_public"`
}

// Validate enforces the backend's metadata rules before any bytes are
// sent: study-type documents carry a single year_level, exercises carry
// one or more year_levels, never both.
func (m UploadMetadata) Validate() error {
	if m.ArtifactName == "" || len(m.ArtifactName) > 200 {
		return fmt.Errorf("artifact_name must be between 1 and 200 characters")
	}
	if m.SubjectID == "" {
		return fmt.Errorf("subject_id is required")
	}

	switch m.DocumentCategory {
	case CategoryStudy, CategoryStudyExercises:
		if m.YearLevel == "" {
			return fmt.Errorf("year_level is required for %q documents", m.DocumentCategory)
		}
		if len(m.YearLevels) > 0 {
			return fmt.Errorf("year_levels is not allowed for %q documents, use year_level", m.DocumentCategory)
		}
	case CategoryExercises:
		if len(m.YearLevels) == 0 {
			return fmt.Errorf("year_levels is required (at least 1) for %q documents", m.DocumentCategory)
		}
		if m.YearLevel != "" {
			return fmt.Errorf("year_level is not allowed for %q documents, use year_levels", m.DocumentCategory)
		}
	default:
		return fmt.Errorf("invalid document_category: %q", m.DocumentCategory)
	}

	return nil
}
