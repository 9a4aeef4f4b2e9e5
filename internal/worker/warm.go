package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/tramline/tramline/internal/itinerary"
)

// CandidateSource computes candidates and fills the edge cache as a side effect.
type CandidateSource interface {
	Candidates(ctx context.Context, fromID, toID string, k int) ([]itinerary.Candidate, error)
}

// WarmJob precomputes candidates for configured stop pairs.
type WarmJob struct {
	config  WarmConfig
	source  CandidateSource
	logger  zerolog.Logger
	metrics *JobMetrics
}

// WarmJobConfig holds configuration for creating a WarmJob.
type WarmJobConfig struct {
	Config  WarmConfig
	Source  CandidateSource
	Logger  zerolog.Logger
	Metrics *JobMetrics
}

// NewWarmJob creates a new cache warm job.
func NewWarmJob(cfg WarmJobConfig) *WarmJob {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = &JobMetrics{}
	}
	return &WarmJob{
		config:  cfg.Config.withDefaults(),
		source:  cfg.Source,
		logger:  cfg.Logger,
		metrics: metrics,
	}
}

// WarmResult contains the result of a warm run.
type WarmResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	// Candidates is the number of candidate paths computed across all targets.
	Candidates int
	Errors     []WarmError
}

// WarmError represents an error while warming one target.
type WarmError struct {
	Target string
	Error  string
}

// Run warms all configured targets with a bounded pool of workers.
func (j *WarmJob) Run(ctx context.Context) *WarmResult {
	startTime := time.Now()
	targets := j.config.Ordered()
	result := &WarmResult{
		StartTime: startTime,
		Total:     len(targets),
	}

	j.logger.Info().
		Int("targets", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting cache warm job")

	targetsChan := make(chan WarmTarget, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.warmWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err != nil {
			result.Failed++
			result.Errors = append(result.Errors, WarmError{Target: tr.target.Name, Error: tr.err.Error()})
			continue
		}
		result.Successful++
		result.Candidates += tr.candidates
	}

	// Targets left in the queue after cancellation count as failed.
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.metrics.record(result.Duration, result.Failed == 0)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Int("candidates", result.Candidates).
		Msg("cache warm job completed")

	return result
}

type targetResult struct {
	target     WarmTarget
	candidates int
	err        error
}

func (j *WarmJob) warmWorker(ctx context.Context, targets <-chan WarmTarget, results chan<- targetResult) {
	for target := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- j.warmTarget(ctx, target)
		}
	}
}

func (j *WarmJob) warmTarget(ctx context.Context, target WarmTarget) targetResult {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	candidates, err := j.source.Candidates(ctx, target.FromStopID, target.ToStopID, j.config.K)
	if err != nil {
		j.logger.Warn().Err(err).
			Str("target", target.Name).
			Msg("failed to warm target")
	}
	return targetResult{target: target, candidates: len(candidates), err: err}
}

// Metrics returns a copy of the job metrics.
func (j *WarmJob) Metrics() JobStats {
	return j.metrics.Stats()
}
