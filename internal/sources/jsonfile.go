package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/christopherklint97/daylog/internal/activity"
)

// JSONDir reads activities exported by external tools from
// <dir>/<source>/<YYYY-MM-DD>.json. A missing file means no activity.
type JSONDir struct {
	Dir string
	Src activity.Source
}

func (j *JSONDir) Source() activity.Source { return j.Src }

func (j *JSONDir) Fetch(ctx context.Context, day time.Time) ([]activity.Activity, error) {
	path := filepath.Join(j.Dir, string(j.Src), day.Format("2006-01-02")+".json")
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var acts []activity.Activity
	if err := json.Unmarshal(data, &acts); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i := range acts {
		acts[i].Source = j.Src
	}
	return withinDay(acts, day), nil
}

// ImportFetchers returns a JSONDir fetcher for every source that has a
// subdirectory under dir.
func ImportFetchers(dir string, skip map[activity.Source]bool) []Fetcher {
	var out []Fetcher
	for _, s := range activity.Sources {
		if skip[s] {
			continue
		}
		if info, err := os.Stat(filepath.Join(dir, string(s))); err == nil && info.IsDir() {
			out = append(out, &JSONDir{Dir: dir, Src: s})
		}
	}
	return out
}
