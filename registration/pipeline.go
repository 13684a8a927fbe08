package registration

import (
	"time"

	"github.com/kwv/pcreg/registration/spatialindex"
)

// PhaseTimings records how long each pipeline stage took on the most
// recent Run call, exposed for the telemetry publisher and debug tooling.
type PhaseTimings struct {
	Descriptors   time.Duration
	Correspond    time.Duration
	Prune         time.Duration
	Solve         time.Duration
}

// Pipeline is the façade wiring the four stages into a single entry
// point: descriptor extraction on both clouds, correspondence search,
// ROBIN pruning, and robust solving, with the most recent call's
// intermediate results and per-phase timing retained for inspection. Each
// call allocates fresh intermediate slices; buffers are not reused across
// calls.
type Pipeline struct {
	cfg       Config
	extractor *Extractor
	matcher   *Matcher
	solver    *Solver

	lastTimings    PhaseTimings
	lastSrcDesc    DescriptorSet
	lastTgtDesc    DescriptorSet
	lastCorr       CorrespondenceSet
	lastPrunedCorr CorrespondenceSet
}

// NewPipeline validates cfg and builds a Pipeline. backend selects the
// spatial index used by both the descriptor extractor and the matcher.
func NewPipeline(cfg Config, backend spatialindex.Backend, seed int64) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Pipeline{
		cfg:       cfg,
		extractor: NewExtractor(cfg, backend),
		matcher:   NewMatcher(cfg, backend, seed),
		solver:    NewSolver(cfg, seed),
	}, nil
}

// Match runs extraction, correspondence search, and pruning on src and
// tgt, both expressed with respect to the given sensor origins (used for
// normal-sign disambiguation during extraction), and returns the two
// coordinate sequences the surviving pruned correspondences align:
// matchedSrc[k] corresponds to matchedTgt[k] for every k. Phase
// timings and intermediate state (keypoint counts, correspondence counts)
// become available through the accessors below once Match returns.
func (p *Pipeline) Match(src, tgt PointCloud, srcOrigin, tgtOrigin Vec3) (matchedSrc, matchedTgt []Vec3) {
	p.lastTimings.Solve = 0

	t0 := time.Now()
	srcDesc := p.extractor.Extract(src, srcOrigin)
	tgtDesc := p.extractor.Extract(tgt, tgtOrigin)
	p.lastTimings.Descriptors = time.Since(t0)
	p.lastSrcDesc, p.lastTgtDesc = srcDesc, tgtDesc

	if len(srcDesc) == 0 || len(tgtDesc) == 0 {
		p.lastCorr, p.lastPrunedCorr = nil, nil
		p.lastTimings.Correspond, p.lastTimings.Prune = 0, 0
		return nil, nil
	}

	t1 := time.Now()
	corr := p.matcher.Match(srcDesc, tgtDesc)
	p.lastTimings.Correspond = time.Since(t1)
	p.lastCorr = corr

	t2 := time.Now()
	pruned := Prune(p.cfg, srcDesc, tgtDesc, corr)
	p.lastTimings.Prune = time.Since(t2)
	p.lastPrunedCorr = pruned

	matchedSrc = make([]Vec3, len(pruned))
	matchedTgt = make([]Vec3, len(pruned))
	for k, c := range pruned {
		matchedSrc[k] = srcDesc[c.I].Position
		matchedTgt[k] = tgtDesc[c.J].Position
	}
	return matchedSrc, matchedTgt
}

// Estimate runs Match followed by the robust SE(3) solver and always
// returns a RegistrationSolution; a geometrically unrecoverable input
// produces Valid == false rather than an error.
func (p *Pipeline) Estimate(src, tgt PointCloud, srcOrigin, tgtOrigin Vec3) RegistrationSolution {
	p.Match(src, tgt, srcOrigin, tgtOrigin)
	if len(p.lastSrcDesc) == 0 || len(p.lastTgtDesc) == 0 {
		return invalidSolution()
	}

	t3 := time.Now()
	sol := p.solver.Estimate(p.lastSrcDesc, p.lastTgtDesc, p.lastPrunedCorr)
	p.lastTimings.Solve = time.Since(t3)

	return sol
}

// Run is a backward-compatible alias for Estimate.
func (p *Pipeline) Run(src, tgt PointCloud, srcOrigin, tgtOrigin Vec3) RegistrationSolution {
	return p.Estimate(src, tgt, srcOrigin, tgtOrigin)
}

// Timings returns the phase breakdown of the most recent Run call.
func (p *Pipeline) Timings() PhaseTimings { return p.lastTimings }

// CorrespondenceCount returns the number of candidate correspondences
// found by the matcher on the most recent Run call, before pruning.
func (p *Pipeline) CorrespondenceCount() int { return len(p.lastCorr) }

// PrunedCorrespondenceCount returns the number of correspondences that
// survived pruning on the most recent Run call.
func (p *Pipeline) PrunedCorrespondenceCount() int { return len(p.lastPrunedCorr) }

// SourceKeypointCount returns the number of keypoints extracted from the
// source cloud on the most recent Run call.
func (p *Pipeline) SourceKeypointCount() int { return len(p.lastSrcDesc) }

// TargetKeypointCount returns the number of keypoints extracted from the
// target cloud on the most recent Run call.
func (p *Pipeline) TargetKeypointCount() int { return len(p.lastTgtDesc) }

// SourceDescriptors returns the source keypoints extracted on the most
// recent Run call, for debug rendering and inspection.
func (p *Pipeline) SourceDescriptors() DescriptorSet { return p.lastSrcDesc }

// TargetDescriptors returns the target keypoints extracted on the most
// recent Run call.
func (p *Pipeline) TargetDescriptors() DescriptorSet { return p.lastTgtDesc }

// Correspondences returns the raw correspondence set from the most
// recent Run call, before pruning.
func (p *Pipeline) Correspondences() CorrespondenceSet { return p.lastCorr }

// PrunedCorrespondences returns the pruned correspondence set from the
// most recent Run call.
func (p *Pipeline) PrunedCorrespondences() CorrespondenceSet { return p.lastPrunedCorr }
