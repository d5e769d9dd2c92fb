package sources

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/christopherklint97/daylog/internal/activity"
)

const testICS = "BEGIN:VCALENDAR\r\n" +
	"VERSION:2.0\r\n" +
	"PRODID:-//daylog//test//EN\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:1\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250310T090000Z\r\n" +
	"DTEND:20250310T103000Z\r\n" +
	"SUMMARY:Sprint planning\r\n" +
	"LOCATION:Room 4\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:2\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART;VALUE=DATE:20250310\r\n" +
	"DTEND;VALUE=DATE:20250311\r\n" +
	"SUMMARY:Company holiday\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:3\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250310T130000Z\r\n" +
	"DTEND:20250310T140000Z\r\n" +
	"SUMMARY:Cancelled sync\r\n" +
	"STATUS:CANCELLED\r\n" +
	"END:VEVENT\r\n" +
	"BEGIN:VEVENT\r\n" +
	"UID:4\r\n" +
	"DTSTAMP:20250301T000000Z\r\n" +
	"DTSTART:20250311T090000Z\r\n" +
	"DTEND:20250311T100000Z\r\n" +
	"SUMMARY:Tomorrow\r\n" +
	"END:VEVENT\r\n" +
	"END:VCALENDAR\r\n"

func TestCalendar_FetchFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cal.ics")
	require.NoError(t, os.WriteFile(path, []byte(testICS), 0o644))

	acts, err := NewCalendar(path, nil).Fetch(context.Background(), testDay)
	require.NoError(t, err)
	require.Len(t, acts, 1)

	a := acts[0]
	assert.Equal(t, activity.SourceCalendar, a.Source)
	assert.Equal(t, "Sprint planning", a.Title)
	assert.Equal(t, "Room 4", a.Detail)
	assert.True(t, a.Timestamp.Equal(testDay.Add(9*time.Hour)))
	require.NotNil(t, a.EndTime)
	assert.Equal(t, 90*time.Minute, a.Duration())
}

func TestCalendar_FetchFromURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/calendar")
		w.Write([]byte(testICS))
	}))
	defer srv.Close()

	acts, err := NewCalendar(srv.URL, nil).Fetch(context.Background(), testDay.AddDate(0, 0, 1))
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, "Tomorrow", acts[0].Title)
}

func TestCalendar_FetchErrors(t *testing.T) {
	_, err := NewCalendar(filepath.Join(t.TempDir(), "missing.ics"), nil).Fetch(context.Background(), testDay)
	require.Error(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()
	_, err = NewCalendar(srv.URL, nil).Fetch(context.Background(), testDay)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}
