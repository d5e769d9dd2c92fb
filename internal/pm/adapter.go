package pm

import "context"

// Adapter is the time-tracking backend.
type Adapter interface {
	Name() string
	GetProjects(ctx context.Context) ([]Project, error)
	// GetActivityTypes returns the types for projectID, or all types when
	// projectID is empty.
	GetActivityTypes(ctx context.Context, projectID string) ([]ActivityType, error)
	GetAllocations(ctx context.Context, date string) ([]Allocation, error)
	GetExistingRecords(ctx context.Context, date string) ([]TimeRecord, error)
	// GetTimeLockDate returns "" when nothing is locked.
	GetTimeLockDate(ctx context.Context) (string, error)
	SubmitTimeLog(ctx context.Context, entry Entry) SubmitResult
}
