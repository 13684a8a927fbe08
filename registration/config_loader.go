package registration

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// fileConfig mirrors Config's fields with yaml tags; kept separate from
// Config itself so the public API stays free of serialization tags.
type fileConfig struct {
	VoxelSize                  float64 `yaml:"voxel_size"`
	UseVoxelSampling           *bool   `yaml:"use_voxel_sampling,omitempty"`
	NormalRadius               float64 `yaml:"normal_radius"`
	FPFHRadius                 float64 `yaml:"fpfh_radius"`
	ThrLinearity               float64 `yaml:"thr_linearity"`
	MinNeighbors               int     `yaml:"min_neighbors"`
	RobinNoiseBound            float64 `yaml:"robin_noise_bound"`
	NumMaxCorr                 int      `yaml:"num_max_corr"`
	TupleScale                 *float64 `yaml:"tuple_scale,omitempty"`
	RobinMode                  string   `yaml:"robin_mode"`
	MaxCliqueVertices          int     `yaml:"max_clique_vertices"`
	UseRatioTest               bool    `yaml:"use_ratio_test"`
	UseQuatro                  bool    `yaml:"use_quatro"`
	SolverNoiseBound           float64 `yaml:"solver_noise_bound"`
	UseLegacyMatcher           bool    `yaml:"use_legacy_matcher"`
	RotationInlierWeightThresh float64 `yaml:"rotation_inlier_weight_thresh"`
	GNCMaxIterations           int     `yaml:"gnc_max_iterations"`
	GNCMuDivisor               float64 `yaml:"gnc_mu_divisor"`
	GNCConvergenceThresh       float64 `yaml:"gnc_convergence_thresh"`

	Jobs []jobSpec `yaml:"jobs,omitempty"`
}

// jobSpec names one batch registration job as it appears in a config file's
// `jobs` list: a pair of point-cloud file paths to load and register
// against each other, the on-disk analog of the Job RunJobs consumes directly.
type jobSpec struct {
	ID     string `yaml:"id"`
	Source string `yaml:"source"`
	Target string `yaml:"target"`
}

// RegistrationJob names one file-backed batch registration job: an ID plus
// the source/target point cloud file paths LoadBatchConfig resolved them
// from a config file's `jobs` list.
type RegistrationJob struct {
	ID         string
	SourcePath string
	TargetPath string
}

// LoadConfig reads a Config from a YAML file. Any field the file omits
// keeps DefaultConfig(voxel_size)'s value, so a minimal file need only set
// voxel_size and let every radius/bound default scale from it. TupleScale
// and UseVoxelSampling are tracked as pointers so an explicit
// tuple_scale: 0 (a legitimate value that disables the tuple filter) or
// use_voxel_sampling: false is distinguishable from the field simply
// being absent.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config YAML: %w", err)
	}
	return configFromFileConfig(fc)
}

// configFromFileConfig merges a parsed fileConfig onto the defaults derived
// from its voxel_size, the shared core of LoadConfig and LoadBatchConfig.
func configFromFileConfig(fc fileConfig) (Config, error) {
	if fc.VoxelSize <= 0 {
		return Config{}, fmt.Errorf("voxel_size is required")
	}

	cfg := DefaultConfig(fc.VoxelSize)
	if fc.UseVoxelSampling != nil {
		cfg.UseVoxelSampling = *fc.UseVoxelSampling
	}
	if fc.NormalRadius > 0 {
		cfg.NormalRadius = fc.NormalRadius
	}
	if fc.FPFHRadius > 0 {
		cfg.FPFHRadius = fc.FPFHRadius
	}
	if fc.ThrLinearity > 0 {
		cfg.ThrLinearity = fc.ThrLinearity
	}
	if fc.MinNeighbors > 0 {
		cfg.MinNeighbors = fc.MinNeighbors
	}
	if fc.RobinNoiseBound > 0 {
		cfg.RobinNoiseBound = fc.RobinNoiseBound
	}
	if fc.NumMaxCorr > 0 {
		cfg.NumMaxCorr = fc.NumMaxCorr
	}
	if fc.TupleScale != nil {
		cfg.TupleScale = *fc.TupleScale
	}
	if fc.RobinMode != "" {
		mode, err := parseRobinMode(fc.RobinMode)
		if err != nil {
			return Config{}, err
		}
		cfg.RobinMode = mode
	}
	if fc.MaxCliqueVertices > 0 {
		cfg.MaxCliqueVertices = fc.MaxCliqueVertices
	}
	cfg.UseRatioTest = fc.UseRatioTest
	cfg.UseQuatro = fc.UseQuatro
	if fc.SolverNoiseBound > 0 {
		cfg.SolverNoiseBound = fc.SolverNoiseBound
	}
	cfg.UseLegacyMatcher = fc.UseLegacyMatcher
	if fc.RotationInlierWeightThresh > 0 {
		cfg.RotationInlierWeightThresh = fc.RotationInlierWeightThresh
	}
	if fc.GNCMaxIterations > 0 {
		cfg.GNCMaxIterations = fc.GNCMaxIterations
	}
	if fc.GNCMuDivisor > 1.0 {
		cfg.GNCMuDivisor = fc.GNCMuDivisor
	}
	if fc.GNCConvergenceThresh > 0 {
		cfg.GNCConvergenceThresh = fc.GNCConvergenceThresh
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadBatchConfig reads a Config plus its `jobs` list from path, the
// multi-job analog of LoadConfig: one config file describing both the
// pipeline tuning and every source/target pair to register against each
// other in one CLI invocation.
func LoadBatchConfig(path string) (Config, []RegistrationJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return Config{}, nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	cfg, err := configFromFileConfig(fc)
	if err != nil {
		return Config{}, nil, err
	}

	jobs := make([]RegistrationJob, len(fc.Jobs))
	for i, j := range fc.Jobs {
		if j.Source == "" || j.Target == "" {
			return Config{}, nil, fmt.Errorf("job %d: source and target are both required", i)
		}
		id := j.ID
		if id == "" {
			id = fmt.Sprintf("job-%d", i)
		}
		jobs[i] = RegistrationJob{ID: id, SourcePath: j.Source, TargetPath: j.Target}
	}
	return cfg, jobs, nil
}

func parseRobinMode(s string) (RobinMode, error) {
	switch s {
	case "none":
		return RobinNone, nil
	case "max-k-core":
		return RobinMaxKCore, nil
	case "max-clique":
		return RobinMaxClique, nil
	default:
		return 0, fmt.Errorf("unknown robin_mode %q", s)
	}
}

// SaveConfig writes cfg to path as YAML, the inverse of LoadConfig.
func SaveConfig(path string, cfg Config) error {
	tupleScale := cfg.TupleScale
	useVoxelSampling := cfg.UseVoxelSampling
	fc := fileConfig{
		VoxelSize:                  cfg.VoxelSize,
		UseVoxelSampling:           &useVoxelSampling,
		NormalRadius:               cfg.NormalRadius,
		FPFHRadius:                 cfg.FPFHRadius,
		ThrLinearity:               cfg.ThrLinearity,
		MinNeighbors:               cfg.MinNeighbors,
		RobinNoiseBound:            cfg.RobinNoiseBound,
		NumMaxCorr:                 cfg.NumMaxCorr,
		TupleScale:                 &tupleScale,
		RobinMode:                  cfg.RobinMode.String(),
		MaxCliqueVertices:          cfg.MaxCliqueVertices,
		UseRatioTest:               cfg.UseRatioTest,
		UseQuatro:                  cfg.UseQuatro,
		SolverNoiseBound:           cfg.SolverNoiseBound,
		UseLegacyMatcher:           cfg.UseLegacyMatcher,
		RotationInlierWeightThresh: cfg.RotationInlierWeightThresh,
		GNCMaxIterations:           cfg.GNCMaxIterations,
		GNCMuDivisor:               cfg.GNCMuDivisor,
		GNCConvergenceThresh:       cfg.GNCConvergenceThresh,
	}
	data, err := yaml.Marshal(fc)
	if err != nil {
		return fmt.Errorf("marshaling config YAML: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
