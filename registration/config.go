package registration

// Config enumerates every tunable of the pipeline. Defaults for the
// radius/noise-bound fields are derived from VoxelSize, so a single scale
// parameter tunes every distance threshold.
type Config struct {
	// VoxelSize is the downsample grid size, in the same units as the
	// input point clouds. Required; every radius default below is a
	// multiple of it.
	VoxelSize float64

	// UseVoxelSampling applies voxel downsampling before descriptor
	// extraction. Downsampling itself is out of this package's scope and
	// Pipeline never downsamples; when true, callers must pass
	// already-downsampled clouds.
	UseVoxelSampling bool

	// NormalRadius is the neighborhood radius used to estimate the
	// surface normal and linearity of each point.
	NormalRadius float64

	// FPFHRadius is the neighborhood radius used to accumulate the
	// 33-bin descriptor histogram.
	FPFHRadius float64

	// ThrLinearity rejects a neighborhood whose linearity
	// (lambda0-lambda1)/lambda0 is >= this threshold. 1.0 effectively
	// disables the filter: only a neighborhood whose second eigenvalue is
	// zero (all points collinear) reaches a linearity of 1.
	ThrLinearity float64

	// MinNeighbors is the minimum neighborhood size (inclusive) below
	// which a point is dropped rather than assigned a descriptor.
	MinNeighbors int

	// RobinNoiseBound is epsilon in the ROBIN edge test: an edge between
	// two correspondences exists iff their length discrepancy is within
	// 2*RobinNoiseBound.
	RobinNoiseBound float64

	// NumMaxCorr caps the number of correspondences surviving the matcher.
	NumMaxCorr int

	// TupleScale is the length-ratio bound for the tuple-consistency
	// filter. Zero disables the filter; otherwise must be in (0, 1).
	TupleScale float64

	// RobinMode selects the graph pruning operator.
	RobinMode RobinMode

	// MaxCliqueVertices bounds the graph size RobinMaxClique will
	// branch-and-bound exactly before falling back to RobinMaxKCore.
	MaxCliqueVertices int

	// UseRatioTest enables the Lowe-style descriptor ratio filter during
	// matching.
	UseRatioTest bool

	// UseQuatro selects the 2-DoF (yaw-only) rotation estimator over the
	// full 3-DoF GNC-TLS estimator.
	UseQuatro bool

	// SolverNoiseBound is c-hat, the noise bound used by both the
	// rotation GNC-TLS weight function and the translation adaptive
	// voting sweep.
	SolverNoiseBound float64

	// UseLegacyMatcher selects the older one-directional nearest-neighbor
	// correspondence matcher (no reverse check) instead of the optimized
	// mutual-NN matcher; the tuple filter runs after either.
	// Retained only for parity testing against the legacy path; the
	// mutual-NN matcher is canonical.
	UseLegacyMatcher bool

	// RotationInlierWeightThresh is the GNC weight threshold above which
	// a correspondence counts as a rotation inlier. Defaults to 0.5.
	RotationInlierWeightThresh float64

	// GNCMaxIterations caps the GNC-TLS iteration count.
	GNCMaxIterations int

	// GNCMuDivisor is the constant ratio mu is divided by each GNC
	// iteration (the source uses 1.4).
	GNCMuDivisor float64

	// GNCConvergenceThresh stops GNC when the weight-delta norm falls
	// below this value.
	GNCConvergenceThresh float64
}

// DefaultConfig returns a Config with every derived default computed from
// voxelSize.
func DefaultConfig(voxelSize float64) Config {
	return Config{
		VoxelSize:                  voxelSize,
		UseVoxelSampling:           true,
		NormalRadius:               2 * voxelSize,
		FPFHRadius:                 5 * voxelSize,
		ThrLinearity:               1.0,
		MinNeighbors:               4,
		RobinNoiseBound:            2 * voxelSize,
		NumMaxCorr:                 5000,
		TupleScale:                 0.95,
		RobinMode:                  RobinMaxKCore,
		MaxCliqueVertices:          1000,
		UseRatioTest:               false,
		UseQuatro:                  false,
		SolverNoiseBound:           2 * voxelSize,
		UseLegacyMatcher:           false,
		RotationInlierWeightThresh: 0.5,
		GNCMaxIterations:           100,
		GNCMuDivisor:               1.4,
		GNCConvergenceThresh:       1e-6,
	}
}

// Validate reports a ConfigurationError for any out-of-range parameter.
// This is the only class of error this package returns eagerly;
// everything else surfaces as an invalid RegistrationSolution.
func (c Config) Validate() error {
	if c.VoxelSize <= 0 {
		return configErr("VoxelSize", c.VoxelSize, "must be positive")
	}
	if c.NormalRadius <= 0 {
		return configErr("NormalRadius", c.NormalRadius, "must be positive")
	}
	if c.FPFHRadius <= 0 {
		return configErr("FPFHRadius", c.FPFHRadius, "must be positive")
	}
	if c.RobinNoiseBound <= 0 {
		return configErr("RobinNoiseBound", c.RobinNoiseBound, "must be positive")
	}
	if c.SolverNoiseBound <= 0 {
		return configErr("SolverNoiseBound", c.SolverNoiseBound, "must be positive")
	}
	if c.TupleScale != 0 && (c.TupleScale <= 0 || c.TupleScale >= 1) {
		return configErr("TupleScale", c.TupleScale, "must be 0 (disabled) or in (0, 1)")
	}
	if c.MinNeighbors < 4 {
		return configErr("MinNeighbors", c.MinNeighbors, "must be >= 4")
	}
	if c.NumMaxCorr <= 0 {
		return configErr("NumMaxCorr", c.NumMaxCorr, "must be positive")
	}
	if c.GNCMuDivisor <= 1.0 {
		return configErr("GNCMuDivisor", c.GNCMuDivisor, "must be > 1.0 to shrink mu")
	}
	return nil
}
