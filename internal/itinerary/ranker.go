package itinerary

import (
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Score folds Select over every hop of the candidate starting from the initial
// state. A candidate without hops scores zero.
func (s *Synthesizer) Score(c Candidate) (PathResult, error) {
	var (
		state  RouteState
		result = PathResult{Hops: make([]ProcessedHop, 0, len(c.Hops))}
	)

	for i, hop := range c.Hops {
		sel, next, err := s.Select(hop, state)
		if err != nil {
			return PathResult{}, fmt.Errorf("hop %d: %w", i, err)
		}
		state = next

		result.Score += sel.Cost
		result.RideTime += sel.Weight
		if sel.Transfer {
			result.Transfers++
		}
		result.Hops = append(result.Hops, ProcessedHop{
			From:   hop.From,
			To:     hop.To,
			Option: sel.Option,
			Weight: sel.Weight,
			Cost:   sel.Cost,
			Action: sel.Action,
		})
	}

	return result, nil
}

// Disqualification records a candidate that could not be scored.
type Disqualification struct {
	Index int
	Err   error
}

// RankStats describes a ranking run.
type RankStats struct {
	Evaluated    int
	Disqualified []Disqualification
}

type scored struct {
	result PathResult
	err    error
}

// Rank scores every candidate and returns the one with the strictly lowest score.
// Ties keep the lowest index. Candidates with degenerate hops are skipped and
// reported in the stats. ErrNoPath is returned when nothing could be scored.
func (s *Synthesizer) Rank(candidates []Candidate) (PathResult, RankStats, error) {
	stats := RankStats{Evaluated: len(candidates)}
	if len(candidates) == 0 {
		return PathResult{}, stats, ErrNoPath
	}

	results := make([]scored, len(candidates))
	if s.cfg.ParallelRanking && len(candidates) > 1 {
		var g errgroup.Group
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i := range candidates {
			g.Go(func() error {
				r, err := s.Score(candidates[i])
				results[i] = scored{result: r, err: err}
				return nil
			})
		}
		_ = g.Wait()
	} else {
		for i := range candidates {
			r, err := s.Score(candidates[i])
			results[i] = scored{result: r, err: err}
		}
	}

	best := -1
	for i, r := range results {
		if r.err != nil {
			stats.Disqualified = append(stats.Disqualified, Disqualification{Index: i, Err: r.err})
			continue
		}
		if best < 0 || r.result.Score < results[best].result.Score {
			best = i
		}
	}

	if best < 0 {
		err := ErrNoPath
		if len(stats.Disqualified) > 0 {
			err = fmt.Errorf("%w: %w", ErrNoPath, errors.Join(disqualificationErrors(stats.Disqualified)...))
		}
		return PathResult{}, stats, err
	}

	out := results[best].result
	out.Index = best
	return out, stats, nil
}

func disqualificationErrors(d []Disqualification) []error {
	errs := make([]error, len(d))
	for i := range d {
		errs[i] = fmt.Errorf("candidate %d: %w", d[i].Index, d[i].Err)
	}
	return errs
}
