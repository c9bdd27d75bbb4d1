package deployment

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"deplopush/internal/client"
	"deplopush/internal/metrics"
	"deplopush/internal/scanner"
)

// Transport performs a single upload attempt
type Transport interface {
	Upload(ctx context.Context, path, projectName string) (*client.DeployResponse, error)
}

// Uploader drives the retry loop for one archive at a time.
//
// Each archive moves through attempts 1..maxRetries and ends in exactly one
// Outcome. Only *client.TransportError failures are retried; rejections,
// local errors and any other error end the sequence immediately.
type Uploader struct {
	transport  Transport
	maxRetries int
	sleep      Sleeper
	logger     *slog.Logger
	metrics    *metrics.Run
}

// UploaderOption customises an Uploader
type UploaderOption func(*Uploader)

// WithSleeper replaces the real-time backoff sleeper
func WithSleeper(s Sleeper) UploaderOption {
	return func(u *Uploader) {
		if s != nil {
			u.sleep = s
		}
	}
}

// WithMetrics records attempts and retries on m
func WithMetrics(m *metrics.Run) UploaderOption {
	return func(u *Uploader) {
		u.metrics = m
	}
}

// NewUploader creates an uploader making at most maxRetries attempts per archive
func NewUploader(t Transport, maxRetries int, logger *slog.Logger, opts ...UploaderOption) *Uploader {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	u := &Uploader{
		transport:  t,
		maxRetries: maxRetries,
		sleep:      Sleep,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Upload deploys archive as projectName and returns its terminal result
func (u *Uploader) Upload(ctx context.Context, archive scanner.Archive, projectName string) Result {
	start := time.Now()
	result := Result{Path: archive.Path, Project: projectName}

	finish := func(outcome Outcome, detail string) Result {
		result.Outcome = outcome
		result.Detail = detail
		result.Duration = time.Since(start)
		return result
	}

	logger := u.logger.With("file", archive.Name, "project", projectName)

	for attempt := 1; attempt <= u.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			logger.Warn("Upload interrupted", "attempt", attempt)
			return finish(Interrupted, err.Error())
		}

		logger.Info("Uploading archive", "attempt", attempt, "max_attempts", u.maxRetries)

		attemptStart := time.Now()
		resp, err := u.transport.Upload(ctx, archive.Path, projectName)
		u.metrics.ObserveAttempt(time.Since(attemptStart))
		result.Attempts = attempt

		if err == nil {
			if resp.Success {
				result.DeployPath = resp.DeployPath
				logger.Info("Deployment succeeded",
					"deploy_path", resp.DeployPath,
					"attempt", attempt,
					"request_id", resp.RequestID)
				return finish(Succeeded, resp.Message)
			}

			logger.Error("Deployment rejected by server",
				"status", resp.StatusCode,
				"message", resp.Message,
				"attempt", attempt,
				"request_id", resp.RequestID)
			return finish(Rejected, rejectionDetail(resp))
		}

		var localErr *client.LocalError
		if errors.As(err, &localErr) {
			logger.Error("Cannot read archive", "error", err)
			return finish(LocalError, err.Error())
		}

		if ctx.Err() != nil || errors.Is(err, context.Canceled) {
			logger.Warn("Upload interrupted", "attempt", attempt, "error", err)
			return finish(Interrupted, err.Error())
		}

		var transportErr *client.TransportError
		if !errors.As(err, &transportErr) {
			logger.Error("Upload failed with unexpected error", "attempt", attempt, "error", err)
			return finish(Unexpected, err.Error())
		}

		if attempt == u.maxRetries {
			logger.Error("Upload failed after all retries", "attempts", attempt, "error", err)
			return finish(ExhaustedRetries, err.Error())
		}

		delay := Backoff(attempt - 1)
		logger.Warn("Upload attempt failed, retrying",
			"attempt", attempt,
			"backoff", delay.String(),
			"error", err)
		u.metrics.ObserveRetry()

		if err := u.sleep(ctx, delay); err != nil {
			logger.Warn("Upload interrupted during backoff", "attempt", attempt)
			return finish(Interrupted, err.Error())
		}
	}

	// unreachable while maxRetries >= 1
	return finish(ExhaustedRetries, "no attempts made")
}

func rejectionDetail(resp *client.DeployResponse) string {
	if resp.Message != "" {
		return resp.Message
	}
	return "server reported success=false"
}
