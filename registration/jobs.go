package registration

import (
	"fmt"

	"github.com/kwv/pcreg/registration/spatialindex"
)

// Job names one source/target pair to register against each other.
type Job struct {
	ID        string
	Source    PointCloud
	Target    PointCloud
	SrcOrigin Vec3
	TgtOrigin Vec3
}

// JobResult pairs a Job's ID with its solution and the pipeline's phase
// timings for that run.
type JobResult struct {
	ID       string
	Solution RegistrationSolution
	Timings  PhaseTimings
	Err      error
}

// RunJobs registers every job against its own source/target pair using a
// fresh Pipeline per job (descriptor/correspondence state isn't safe to
// share across concurrent Run calls). Jobs run sequentially in the order
// given; a ConfigurationError from cfg aborts the whole batch immediately,
// since it means every job would fail identically.
func RunJobs(cfg Config, backend spatialindex.Backend, seed int64, jobs []Job) ([]JobResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("registration: batch aborted: %w", err)
	}

	results := make([]JobResult, len(jobs))
	for i, j := range jobs {
		p, err := NewPipeline(cfg, backend, seed+int64(i))
		if err != nil {
			results[i] = JobResult{ID: j.ID, Err: err}
			continue
		}
		sol := p.Run(j.Source, j.Target, j.SrcOrigin, j.TgtOrigin)
		results[i] = JobResult{ID: j.ID, Solution: sol, Timings: p.Timings()}
	}
	return results, nil
}
