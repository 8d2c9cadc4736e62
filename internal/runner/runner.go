// © 2025 Ilya Mateyko. All rights reserved.
// Use of this source code is governed by the ISC
// license that can be found in the LICENSE.md file.

// Package runner performs a single poll-and-notify pass over the watched
// projects.
package runner

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.astrophena.name/weblatebot/internal/change"
	"go.astrophena.name/weblatebot/internal/config"
	"go.astrophena.name/weblatebot/internal/logger"
	"go.astrophena.name/weblatebot/internal/notify"
	"go.astrophena.name/weblatebot/internal/selector"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// DefaultDeadline is the soft time budget of a run. It stays below the
// execution limit of typical serverless platforms.
const DefaultDeadline = 50 * time.Second

// ErrDeadlineExceeded is recorded for projects that were not processed
// because the run ran out of time.
var ErrDeadlineExceeded = errors.New("skipped: execution deadline exceeded")

// Runner polls projects and notifies about their recent changes.
type Runner struct {
	// Sources maps config.SourceAPI and config.SourceFeed to implementations.
	Sources  map[string]change.Source
	Notifier *notify.Notifier
	// Location is the time zone of timestamps in messages.
	Location *time.Location
	// Deadline is checked before starting each project. Defaults to
	// DefaultDeadline.
	Deadline time.Duration
	// Concurrency is the number of projects processed at once. Values below
	// 1 mean one.
	Concurrency int
	// PageSize is passed to sources.
	PageSize int
	// Dry renders messages and logs them instead of sending.
	Dry bool
	// Metrics, if not nil, is updated after every run.
	Metrics *Metrics

	now func() time.Time // used in tests
}

// ProjectResult is the outcome of processing one project.
type ProjectResult struct {
	Project     string `json:"project"`
	Success     bool   `json:"success"`
	ChangesSent int    `json:"changes_sent"`
	RecentCount int    `json:"recent_count"`
	TotalSeen   int    `json:"total_seen"`
	Fallback    bool   `json:"fallback,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Summary is the outcome of a run.
type Summary struct {
	// Success reports whether every project was processed without errors.
	Success            bool            `json:"success"`
	TotalNotifications int             `json:"total_notifications"`
	TotalRecentChanges int             `json:"total_recent_changes"`
	Projects           []ProjectResult `json:"projects"`
	ExecutionTimeMS    int64           `json:"execution_time_ms"`
	Message            string          `json:"message"`
	RunID              string          `json:"run_id"`
}

// Run processes projects and returns a summary. Failures of individual
// projects are recorded in their results and never stop the run.
func (r *Runner) Run(ctx context.Context, projects []config.Project) Summary {
	now := r.now
	if now == nil {
		now = time.Now
	}
	start := now()
	deadline := cmp.Or(r.Deadline, DefaultDeadline)

	runID := uuid.NewString()
	ctx = logger.With(ctx, "run_id", runID)
	log := logger.Get(ctx)
	log.Info("starting run", "projects", len(projects), "dry", r.Dry)

	results := make([]ProjectResult, len(projects))

	var g errgroup.Group
	g.SetLimit(max(r.Concurrency, 1))
	for i, p := range projects {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("project panicked", "project", p.Slug, "panic", rec, "stack", string(debug.Stack()))
					results[i] = ProjectResult{Project: p.Slug, Error: fmt.Sprint("panic: ", rec)}
				}
			}()
			if elapsed := now().Sub(start); elapsed > deadline {
				log.Warn("skipping project", "project", p.Slug, "elapsed", elapsed)
				results[i] = ProjectResult{Project: p.Slug, Error: ErrDeadlineExceeded.Error()}
				return nil
			}
			results[i] = r.processProject(logger.With(ctx, "project", p.Slug), p, now())
			return nil
		})
	}
	g.Wait()

	sum := summarize(results)
	sum.RunID = runID
	sum.ExecutionTimeMS = now().Sub(start).Milliseconds()
	r.Metrics.observe(sum)
	log.Info("run finished",
		"notifications", sum.TotalNotifications,
		"recent", sum.TotalRecentChanges,
		"duration", now().Sub(start),
	)
	return sum
}

func (r *Runner) processProject(ctx context.Context, p config.Project, now time.Time) ProjectResult {
	log := logger.Get(ctx)
	res := ProjectResult{Project: p.Slug}

	src, ok := r.Sources[p.Source]
	if !ok {
		res.Error = fmt.Sprintf("no source %q configured", p.Source)
		return res
	}

	q := change.Query{Project: p.Slug, PageSize: r.PageSize, Language: languageQuery(p.Languages)}
	recs, err := src.Fetch(ctx, q)
	if err != nil {
		log.Warn("fetch failed", "error", err)
		res.Error = err.Error()
		return res
	}
	res.TotalSeen = len(recs)

	sel := selector.Select(recs, now, selector.Criteria{
		Slug:                  p.Slug,
		Languages:             p.Languages,
		Components:            p.Components,
		Window:                p.Window,
		MaxNotify:             p.MaxNotify,
		EmitFallbackWhenEmpty: p.Fallback,
		Keep:                  p.Keep,
	})
	res.RecentCount = sel.Recent
	res.Fallback = sel.Fallback
	log.Debug("selected changes", "seen", len(recs), "filtered", sel.Filtered, "recent", sel.Recent, "selected", len(sel.Records))

	texts := make([]string, 0, len(sel.Records))
	for _, rec := range sel.Records {
		texts = append(texts, notify.Render(rec, p, sel.Fallback, p.Window, r.Location))
	}

	if r.Dry {
		for i, text := range texts {
			log.Info("would send message", "change_id", sel.Records[i].ID, "message", text)
		}
		res.Success = true
		return res
	}

	var lastErr error
	for i, out := range r.Notifier.NotifyAll(ctx, texts) {
		if out.Sent {
			res.ChangesSent++
			continue
		}
		lastErr = out.Err
		log.Warn("notification failed", "change_id", sel.Records[i].ID, "attempts", out.Attempts, "error", out.Err)
	}
	if lastErr != nil {
		res.Error = fmt.Sprintf("%d of %d notifications failed: %v", len(texts)-res.ChangesSent, len(texts), lastErr)
		return res
	}
	res.Success = true
	return res
}

// summarize folds project results into a summary.
func summarize(results []ProjectResult) Summary {
	sum := Summary{Success: true, Projects: results}
	var failed, skipped int
	for _, res := range results {
		sum.TotalNotifications += res.ChangesSent
		sum.TotalRecentChanges += res.RecentCount
		if res.Success {
			continue
		}
		sum.Success = false
		if res.Error == ErrDeadlineExceeded.Error() {
			skipped++
		} else {
			failed++
		}
	}
	sum.Message = fmt.Sprintf("processed %d project(s), sent %d notification(s)", len(results)-skipped, sum.TotalNotifications)
	if failed > 0 {
		sum.Message += fmt.Sprintf(", %d project(s) failed", failed)
	}
	if skipped > 0 {
		sum.Message += fmt.Sprintf(", %d skipped", skipped)
	}
	return sum
}

// languageQuery returns the language code the source can filter by, or an
// empty string if records must be filtered locally. Only a single regional
// code is passed on: a base code like "pt" also matches "pt_BR" locally,
// which an exact upstream filter would drop.
func languageQuery(langs []string) string {
	if len(langs) != 1 {
		return ""
	}
	base, region, ok := strings.Cut(strings.ReplaceAll(strings.TrimSpace(langs[0]), "-", "_"), "_")
	if !ok || base == "" || region == "" {
		return ""
	}
	return strings.ToLower(base) + "_" + region
}
