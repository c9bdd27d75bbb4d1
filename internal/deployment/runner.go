package deployment

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"deplopush/internal/client"
	"deplopush/internal/metrics"
	"deplopush/internal/project"
	"deplopush/internal/scanner"
	"deplopush/internal/security"

	"golang.org/x/time/rate"
)

// API is the subset of the deployment server client used by a run
type API interface {
	Transport
	Health(ctx context.Context) client.Health
	ListProjects(ctx context.Context) ([]project.Project, error)
}

// Options configures a Runner
type Options struct {
	Dir              string
	MaxRetries       int
	UploadsPerMinute int
	Sleeper          Sleeper
	Metrics          *metrics.Run
	Logger           *slog.Logger
}

// Runner orchestrates a deployment run: health probe, scan, then one upload
// sequence per archive in scan order.
type Runner struct {
	api      API
	dir      string
	scanner  *scanner.Scanner
	uploader *Uploader
	limiter  *rate.Limiter
	metrics  *metrics.Run
	logger   *slog.Logger
}

// NewRunner creates a Runner talking to api
func NewRunner(api API, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	r := &Runner{
		api:     api,
		dir:     opts.Dir,
		scanner: scanner.New(logger),
		uploader: NewUploader(api, opts.MaxRetries, logger,
			WithSleeper(opts.Sleeper),
			WithMetrics(opts.Metrics)),
		metrics: opts.Metrics,
		logger:  logger,
	}

	if opts.UploadsPerMinute > 0 {
		r.limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(opts.UploadsPerMinute)), 1)
	}
	return r
}

// CheckHealth probes the server once and logs the verdict
func (r *Runner) CheckHealth(ctx context.Context) client.Health {
	health := r.api.Health(ctx)
	if health.Healthy {
		r.logger.Info("Server is healthy", "status", health.Status)
	} else {
		r.logger.Error("Server health check failed", "status", health.Status, "error", health.Err)
	}
	return health
}

// ListProjects returns the deployed projects. Failures are logged and yield
// an empty list.
func (r *Runner) ListProjects(ctx context.Context) []project.Project {
	projects, err := r.api.ListProjects(ctx)
	if err != nil {
		r.logger.Error("Failed to list projects", "error", err)
		return []project.Project{}
	}
	r.logger.Info("Fetched project list", "count", len(projects))
	return projects
}

// PlannedUpload maps a discovered archive to the project it would deploy as
type PlannedUpload struct {
	Archive scanner.Archive
	Project string
	// NameErr is set when a strict server would refuse the project name
	NameErr error
}

// Plan scans the directory and derives project names without any network I/O
func (r *Runner) Plan(prefix string) ([]PlannedUpload, error) {
	archives, err := r.scanner.Scan(r.dir)
	if err != nil {
		return nil, err
	}

	plan := make([]PlannedUpload, 0, len(archives))
	for _, a := range archives {
		name := project.Name(a.Stem, prefix)
		plan = append(plan, PlannedUpload{
			Archive: a,
			Project: name,
			NameErr: security.ValidateProjectName(name),
		})
	}
	return plan, nil
}

// Run deploys every archive under the configured directory.
// Per-file failures never stop the batch; cancelling ctx does, at the next
// file boundary or backoff sleep.
func (r *Runner) Run(ctx context.Context, prefix string) Summary {
	var summary Summary
	defer func() { r.finish(summary) }()

	if !r.CheckHealth(ctx).Healthy {
		r.logger.Error("Aborting run, server is not healthy")
		summary.Status = StatusAborted
		return summary
	}

	archives, err := r.scanner.Scan(r.dir)
	if err != nil {
		r.logger.Error("Cannot scan directory", "dir", r.dir, "error", err)
	}
	summary.Total = len(archives)
	r.metrics.ObserveDiscovered(len(archives))

	if len(archives) == 0 {
		r.logger.Warn("No archive files found", "dir", r.dir)
		summary.Status = StatusEmpty
		return summary
	}

	summary.Status = StatusCompleted
	for i, archive := range archives {
		if ctx.Err() != nil {
			r.logger.Warn("Run interrupted", "remaining", len(archives)-i)
			summary.Status = StatusInterrupted
			break
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				r.logger.Warn("Run interrupted while pacing uploads", "remaining", len(archives)-i, "error", err)
				summary.Status = StatusInterrupted
				break
			}
		}

		name := project.Name(archive.Stem, prefix)
		if err := security.ValidateProjectName(name); err != nil {
			r.logger.Warn("Project name may be rejected by the server", "project", name, "error", err)
		}

		r.logger.Info("Processing archive",
			"progress", fmt.Sprintf("%d/%d", i+1, len(archives)),
			"file", archive.Path,
			"size", archive.Size)

		result := r.uploader.Upload(ctx, archive, name)
		summary.Add(result)
		r.metrics.ObserveResult(result.Outcome.String(), archive.Size, result.OK())

		if result.Outcome == Interrupted {
			summary.Status = StatusInterrupted
			r.logger.Warn("Run interrupted", "remaining", len(archives)-i-1)
			break
		}
	}

	return summary
}

func (r *Runner) finish(summary Summary) {
	r.metrics.ObserveFinished(summary.Status.String(), time.Now())

	level := slog.LevelInfo
	if !summary.OK() {
		level = slog.LevelError
	}
	r.logger.Log(context.Background(), level, "Deployment run finished",
		"status", summary.Status.String(),
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed)
}
