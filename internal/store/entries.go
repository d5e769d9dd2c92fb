package store

import (
	"database/sql"
	"fmt"
	"time"
)

const (
	StatusLogged = "logged"
	StatusFailed = "failed"
)

// Entry is one submitted time-log line as recorded locally.
type Entry struct {
	ID               int
	RemoteID         string
	ProjectID        string
	ProjectName      string
	ActivityTypeID   string
	ActivityTypeName string
	Date             string
	Hours            float64
	Description      string
	InternalNote     string
	Status           string
	Error            string
	CreatedAt        time.Time
}

const entryColumns = `id, remote_id, project_id, project_name, activity_type_id, activity_type_name,
	date, hours, description, internal_note, status, error, created_at`

func (db *DB) InsertEntry(e *Entry) (int64, error) {
	if e.Status == "" {
		e.Status = StatusLogged
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	result, err := db.Exec(
		`INSERT INTO entries (remote_id, project_id, project_name, activity_type_id, activity_type_name,
			date, hours, description, internal_note, status, error, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RemoteID, e.ProjectID, e.ProjectName, e.ActivityTypeID, e.ActivityTypeName,
		e.Date, e.Hours, e.Description, e.InternalNote, e.Status, e.Error,
		e.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("inserting entry: %w", err)
	}
	id, err := result.LastInsertId()
	if err == nil {
		e.ID = int(id)
	}
	return id, err
}

func (db *DB) UpdateEntryStatus(id int, status, remoteID, errMsg string) error {
	_, err := db.Exec(
		"UPDATE entries SET status = ?, remote_id = ?, error = ? WHERE id = ?",
		status, remoteID, errMsg, id,
	)
	return err
}

func (db *DB) GetEntriesForDate(date string) ([]Entry, error) {
	return db.queryEntries(
		`SELECT `+entryColumns+`
		 FROM entries
		 WHERE date = ?
		 ORDER BY id ASC`,
		date,
	)
}

func (db *DB) GetRecentEntries(limit int) ([]Entry, error) {
	return db.queryEntries(
		`SELECT `+entryColumns+`
		 FROM entries
		 ORDER BY id DESC
		 LIMIT ?`,
		limit,
	)
}

func (db *DB) GetFailedEntries() ([]Entry, error) {
	return db.queryEntries(
		`SELECT `+entryColumns+`
		 FROM entries
		 WHERE status = 'failed'
		 ORDER BY id ASC`,
	)
}

func (db *DB) queryEntries(query string, args ...any) ([]Entry, error) {
	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var remoteID, note, errMsg sql.NullString
		var createdStr string

		if err := rows.Scan(
			&e.ID, &remoteID, &e.ProjectID, &e.ProjectName, &e.ActivityTypeID, &e.ActivityTypeName,
			&e.Date, &e.Hours, &e.Description, &note, &e.Status, &errMsg, &createdStr,
		); err != nil {
			return nil, fmt.Errorf("scanning entry: %w", err)
		}

		e.RemoteID = remoteID.String
		e.InternalNote = note.String
		e.Error = errMsg.String

		if t, err := time.Parse(time.RFC3339Nano, createdStr); err == nil {
			e.CreatedAt = t
		}

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
