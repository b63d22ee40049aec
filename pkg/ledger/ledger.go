// Package ledger defines the append-only record of action runs.
package ledger

import (
	"context"
	"sort"

	"github.com/dukex/stageflow/pkg/models"
)

// Ledger stores runs. Runs are never updated after Append.
type Ledger interface {
	Append(ctx context.Context, run *models.Run) (string, error)
	ListForRule(ctx context.Context, ruleID string) ([]*models.Run, error)
	ListForInstance(ctx context.Context, instanceID string) ([]*models.Run, error)
}

// Summary aggregates the authoritative outcomes of a set of runs.
type Summary struct {
	Total       int         `json:"total"`
	Succeeded   int         `json:"succeeded"`
	Failed      int         `json:"failed"`
	TimedOut    int         `json:"timed_out"`
	Attempts    int         `json:"attempts"`
	LastFailure *models.Run `json:"last_failure,omitempty"`
	LastRun     *models.Run `json:"last_run,omitempty"`
}

// Summarize counts one outcome per attempt group, taking the final attempt.
func Summarize(runs []*models.Run) Summary {
	summary := Summary{Attempts: len(runs)}

	for _, run := range Authoritative(runs) {
		summary.Total++

		switch run.Status {
		case models.RunStatusSucceeded:
			summary.Succeeded++
		case models.RunStatusTimedOut:
			summary.TimedOut++
		default:
			summary.Failed++
		}

		if summary.LastRun == nil || run.StartedAt.After(summary.LastRun.StartedAt) {
			summary.LastRun = run
		}

		if !run.Succeeded() && (summary.LastFailure == nil || run.StartedAt.After(summary.LastFailure.StartedAt)) {
			summary.LastFailure = run
		}
	}

	return summary
}

// Authoritative keeps the highest attempt of every attempt group, ordered by start time.
func Authoritative(runs []*models.Run) []*models.Run {
	latest := make(map[string]*models.Run, len(runs))

	for _, run := range runs {
		group := run.AttemptGroupID
		if group == "" {
			group = run.ID
		}

		if current, ok := latest[group]; !ok || run.Attempt > current.Attempt {
			latest[group] = run
		}
	}

	out := make([]*models.Run, 0, len(latest))
	for _, run := range latest {
		out = append(out, run)
	}

	SortRuns(out)

	return out
}

// SortRuns orders runs by start time, then attempt, then id.
func SortRuns(runs []*models.Run) {
	sort.SliceStable(runs, func(i, j int) bool {
		if !runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].StartedAt.Before(runs[j].StartedAt)
		}

		if runs[i].Attempt != runs[j].Attempt {
			return runs[i].Attempt < runs[j].Attempt
		}

		return runs[i].ID < runs[j].ID
	})
}
