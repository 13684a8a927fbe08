package registration

// Point is a single 3-D coordinate, stored in single precision. The
// descriptor extractor promotes each point to double precision on input,
// and every later stage, including the solver whose numerical stability
// depends on it, works in double precision.
type Point struct {
	X, Y, Z float32
}

// PointCloud is an ordered sequence of points. Index is stable across
// stages: downstream components refer back to a PointCloud by position.
type PointCloud []Point

// DescriptorDims is the fixed dimensionality of a descriptor: three 11-bin
// angle histograms concatenated.
const DescriptorDims = 33

// Descriptor is a fixed-dimension, non-negative, L1-normalized local
// geometric signature. Its representation is opaque to the correspondence
// search and graph pruning stages.
type Descriptor [DescriptorDims]float64

// Correspondence pairs a source keypoint index with a target keypoint
// index. Indices refer to the keypoint clouds returned by the descriptor
// extractor, never to the raw input clouds.
type Correspondence struct {
	I int // index into source keypoints
	J int // index into target keypoints
}

// CorrespondenceSet is an ordered sequence of Correspondence. The final
// solution must not depend on the order of this sequence.
type CorrespondenceSet []Correspondence

// RobinMode selects the graph pruning operator used by the ROBIN stage.
type RobinMode int

const (
	// RobinNone disables pruning: the correspondence set produced by the
	// matcher
	// passes through to the solver unchanged.
	RobinNone RobinMode = iota
	// RobinMaxKCore extracts the maximal k-core for the largest k yielding
	// a non-empty core.
	RobinMaxKCore
	// RobinMaxClique extracts an exact maximum clique (falls back to
	// RobinMaxKCore above Config.MaxCliqueVertices).
	RobinMaxClique
)

func (m RobinMode) String() string {
	switch m {
	case RobinNone:
		return "none"
	case RobinMaxKCore:
		return "max-k-core"
	case RobinMaxClique:
		return "max-clique"
	default:
		return "unknown"
	}
}

// Vec3 is a double-precision 3-vector, used for keypoint positions,
// normals and sensor origins from descriptor extraction onward.
type Vec3 struct {
	X, Y, Z float64
}

// Mat3 is a row-major 3x3 matrix.
type Mat3 [3][3]float64

// Identity3 returns the 3x3 identity matrix.
func Identity3() Mat3 {
	return Mat3{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// RegistrationSolution is the output of the robust SE(3) solver.
//
// Invariants: Rotation is orthogonal with determinant +1 when Valid is
// true. When Valid is false, Rotation is the identity and Translation is
// zero, per the error-handling design: recoverable failures never return a
// Go error, they return an explicitly invalid solution.
type RegistrationSolution struct {
	Rotation       Mat3
	Translation    Vec3
	Valid          bool
	Scale          float64
	RotationInlierIdx    []int // indices into the pruned correspondence set
	TranslationInlierIdx []int
}

// invalidSolution is the canonical "failed, but not fatal" result.
func invalidSolution() RegistrationSolution {
	return RegistrationSolution{
		Rotation:    Identity3(),
		Translation: Vec3{},
		Valid:       false,
		Scale:       1.0,
	}
}
