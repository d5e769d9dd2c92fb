package pm

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Mock is an in-memory backend used offline and in tests.
type Mock struct {
	mu            sync.Mutex
	Projects      []Project
	ActivityTypes []ActivityType
	Allocations   []Allocation
	Records       map[string][]TimeRecord
	LockDate      string
	// FailProjects makes submissions for these project ids fail.
	FailProjects map[string]bool
	// Err, when set, fails every read.
	Err error

	submitted []Entry
	logger    *slog.Logger
}

func NewMock(logger *slog.Logger) *Mock {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Mock{
		Projects: []Project{
			{ID: "p1", Name: "Project Alpha", Code: "ALFA"},
			{ID: "p2", Name: "DevApp", Code: "DEV"},
			{ID: "p3", Name: "Customer Portal", Code: "CP"},
			{ID: "p4", Name: "Internal/Admin", Code: "INT"},
			{ID: "p5", Name: "Sales & Marketing", Code: "SAL"},
			{ID: "p6", Name: "Training", Code: "TRN"},
		},
		ActivityTypes: []ActivityType{
			{ID: "a1", Name: "Development"},
			{ID: "a2", Name: "R&D"},
			{ID: "a3", Name: "Meetings"},
			{ID: "a4", Name: "Administration"},
			{ID: "a5", Name: "Documentation"},
			{ID: "a6", Name: "Testing"},
			{ID: "a7", Name: "Planning"},
		},
		Allocations: []Allocation{
			{ProjectID: "p1", ProjectName: "Project Alpha", AllocatedHours: 3},
			{ProjectID: "p2", ProjectName: "DevApp", AllocatedHours: 3},
			{ProjectID: "p4", ProjectName: "Internal/Admin", AllocatedHours: 1.5},
		},
		Records: make(map[string][]TimeRecord),
		logger:  logger,
	}
}

func (m *Mock) Name() string { return "mock" }

func (m *Mock) GetProjects(ctx context.Context) ([]Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]Project(nil), m.Projects...), nil
}

func (m *Mock) GetActivityTypes(ctx context.Context, projectID string) ([]ActivityType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]ActivityType(nil), m.ActivityTypes...), nil
}

func (m *Mock) GetAllocations(ctx context.Context, date string) ([]Allocation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]Allocation(nil), m.Allocations...), nil
}

func (m *Mock) GetExistingRecords(ctx context.Context, date string) ([]TimeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	return append([]TimeRecord(nil), m.Records[date]...), nil
}

func (m *Mock) GetTimeLockDate(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	return m.LockDate, nil
}

func (m *Mock) SubmitTimeLog(ctx context.Context, entry Entry) SubmitResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailProjects[entry.ProjectID] {
		return SubmitResult{EntryID: entry.ID, Error: fmt.Sprintf("project %s rejected the entry", entry.ProjectID)}
	}
	m.logger.Debug("mock submit", "project", entry.ProjectID, "date", entry.Date, "hours", entry.Hours)
	m.submitted = append(m.submitted, entry)
	m.Records[entry.Date] = append(m.Records[entry.Date], TimeRecord{
		ID:             fmt.Sprintf("r%d", len(m.submitted)),
		ProjectID:      entry.ProjectID,
		ActivityTypeID: entry.ActivityTypeID,
		Date:           entry.Date,
		Hours:          entry.Hours,
		Description:    entry.Description,
	})
	return SubmitResult{EntryID: entry.ID, Success: true}
}

// SetLockDate changes the time-lock date while the mock is in use.
func (m *Mock) SetLockDate(date string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockDate = date
}

// Submitted returns every entry accepted so far.
func (m *Mock) Submitted() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Entry(nil), m.submitted...)
}
