package domain

// GenerationStatus classifies a single completion-backend response.
type GenerationStatus string

const (
	GenerationAppliedEdit GenerationStatus = "applied_edit"
	GenerationCompleted   GenerationStatus = "completed"
	GenerationError       GenerationStatus = "error"
)

// Generation is the parsed result of one completion-backend call. It is
// transient: it is folded into a Turn rather than persisted on its own.
type Generation struct {
	Status  GenerationStatus
	Message string
	Edits   string
}
