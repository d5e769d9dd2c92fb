package pm

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date format used throughout the time-tracking API.
const DateLayout = "2006-01-02"

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
}

type ActivityType struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	ProjectID string `json:"projectId,omitempty"`
}

type Allocation struct {
	ProjectID      string  `json:"projectId"`
	ProjectName    string  `json:"projectName"`
	AllocatedHours float64 `json:"allocatedHours"`
}

// TimeRecord is time already logged in the backend.
type TimeRecord struct {
	ID               string  `json:"id"`
	ProjectID        string  `json:"projectId"`
	ProjectName      string  `json:"projectName,omitempty"`
	ActivityTypeID   string  `json:"activityTypeId,omitempty"`
	ActivityTypeName string  `json:"activityTypeName,omitempty"`
	Date             string  `json:"date"`
	Hours            float64 `json:"hours"`
	Description      string  `json:"description,omitempty"`
}

// Context is the project metadata a generator needs for one date.
type Context struct {
	Projects      []Project      `json:"projects"`
	ActivityTypes []ActivityType `json:"activityTypes"`
	// ProjectActivityTypes groups permitted activity types by project id.
	// Empty when the backend does not restrict types per project.
	ProjectActivityTypes map[string][]ActivityType `json:"projectActivityTypes,omitempty"`
	Allocations          []Allocation              `json:"allocations"`
	ExistingRecords      []TimeRecord              `json:"existingRecords"`
	TimeLockDate         string                    `json:"timeLockDate,omitempty"`
}

// IsLocked reports whether date falls on or before the time-lock date.
func (c *Context) IsLocked(date string) bool {
	if c == nil {
		return false
	}
	return IsLocked(date, c.TimeLockDate)
}

// LoggedHours sums the existing records.
func (c *Context) LoggedHours() float64 {
	if c == nil {
		return 0
	}
	var total float64
	for _, r := range c.ExistingRecords {
		total += r.Hours
	}
	return total
}

// ProjectByID returns the project with id, if present.
func (c *Context) ProjectByID(id string) (Project, bool) {
	if c == nil {
		return Project{}, false
	}
	for _, p := range c.Projects {
		if p.ID == id {
			return p, true
		}
	}
	return Project{}, false
}

// ActivityTypesFor returns the types permitted for projectID, falling back to
// the global list.
func (c *Context) ActivityTypesFor(projectID string) []ActivityType {
	if c == nil {
		return nil
	}
	if types, ok := c.ProjectActivityTypes[projectID]; ok && len(types) > 0 {
		return types
	}
	return c.ActivityTypes
}

// IsLocked compares ISO dates lexically; an empty lock date locks nothing.
func IsLocked(date, lockDate string) bool {
	if lockDate == "" {
		return false
	}
	return date <= lockDate
}

// Entry is one time-log line submitted to the backend.
type Entry struct {
	ID               string  `json:"id,omitempty"`
	ProjectID        string  `json:"projectId" validate:"required"`
	ProjectName      string  `json:"projectName,omitempty"`
	ActivityTypeID   string  `json:"activityTypeId" validate:"required"`
	ActivityTypeName string  `json:"activityTypeName,omitempty"`
	Date             string  `json:"date" validate:"required,isodate"`
	Hours            float64 `json:"hours" validate:"gt=0,lte=24"`
	Description      string  `json:"description"`
	InternalNote     string  `json:"internalNote,omitempty"`
}

// SubmitResult is the per-entry outcome of a submission.
type SubmitResult struct {
	EntryID string `json:"entryId"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// LockError rejects a whole batch that touches locked dates.
type LockError struct {
	LockDate string
	Dates    []string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("hours are locked through %s", e.LockDate)
}

// ParseDate parses a YYYY-MM-DD date in loc.
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (want YYYY-MM-DD): %w", s, err)
	}
	return t, nil
}
