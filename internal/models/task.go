package models

import "time"

// Task is the only entity the API manages.
type Task struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Completed   bool      `json:"completed"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewTask carries the validated fields of a create request.
type NewTask struct {
	Description string
	Completed   bool
}

// TaskPatch holds the allowed mutable fields of an update. Nil means "not sent".
type TaskPatch struct {
	Description *string
	Completed   *bool
}

// IsEmpty reports whether the patch would leave a task unchanged.
func (p TaskPatch) IsEmpty() bool {
	return p.Description == nil && p.Completed == nil
}

// UpdateSummary is what a batch update-by-filter reports back.
type UpdateSummary struct {
	Acknowledged  bool  `json:"acknowledged"`
	MatchedCount  int64 `json:"matchedCount"`
	ModifiedCount int64 `json:"modifiedCount"`
}

// DeleteSummary is what a batch delete reports back.
type DeleteSummary struct {
	Acknowledged bool  `json:"acknowledged"`
	DeletedCount int64 `json:"deletedCount"`
}
