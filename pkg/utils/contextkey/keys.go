package contextkey

// key is a private type to avoid context key collisions across packages.
type key string

const (
	RunID        key = "run_id"
	AssignmentID key = "assignment_id"
	StudentID    key = "student_id"
)
