package pm

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"
)

// LoadOptions tunes LoadContext.
type LoadOptions struct {
	// PerProjectActivityTypes fetches the permitted types of every project.
	PerProjectActivityTypes bool
}

// LoadContext fetches everything a generator needs for date concurrently.
// Any failure fails the whole load.
func LoadContext(ctx context.Context, a Adapter, date string, opts LoadOptions) (*Context, error) {
	var out Context
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		projects, err := a.GetProjects(gctx)
		if err != nil {
			return err
		}
		out.Projects = projects
		return nil
	})
	g.Go(func() error {
		types, err := a.GetActivityTypes(gctx, "")
		if err != nil {
			return err
		}
		out.ActivityTypes = types
		return nil
	})
	g.Go(func() error {
		allocations, err := a.GetAllocations(gctx, date)
		if err != nil {
			return err
		}
		out.Allocations = allocations
		return nil
	})
	g.Go(func() error {
		records, err := a.GetExistingRecords(gctx, date)
		if err != nil {
			return err
		}
		out.ExistingRecords = records
		return nil
	})
	g.Go(func() error {
		lock, err := a.GetTimeLockDate(gctx)
		if err != nil {
			return err
		}
		out.TimeLockDate = lock
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("loading %s context for %s: %w", a.Name(), date, err)
	}

	if opts.PerProjectActivityTypes && len(out.Projects) > 0 {
		grouped, err := loadProjectActivityTypes(ctx, a, out.Projects)
		if err != nil {
			return nil, fmt.Errorf("loading %s activity types per project: %w", a.Name(), err)
		}
		out.ProjectActivityTypes = grouped
	}

	if out.Projects == nil {
		out.Projects = []Project{}
	}
	if out.ActivityTypes == nil {
		out.ActivityTypes = []ActivityType{}
	}
	if out.Allocations == nil {
		out.Allocations = []Allocation{}
	}
	if out.ExistingRecords == nil {
		out.ExistingRecords = []TimeRecord{}
	}
	return &out, nil
}

func loadProjectActivityTypes(ctx context.Context, a Adapter, projects []Project) (map[string][]ActivityType, error) {
	var mu sync.Mutex
	grouped := make(map[string][]ActivityType, len(projects))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, p := range projects {
		g.Go(func() error {
			types, err := a.GetActivityTypes(gctx, p.ID)
			if err != nil {
				return fmt.Errorf("project %s: %w", p.ID, err)
			}
			mu.Lock()
			grouped[p.ID] = types
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return grouped, nil
}
