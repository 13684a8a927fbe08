package registration

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Solver estimates a rigid SE(3) transform from a pruned correspondence
// set: translation-invariant measurements between every correspondence
// pair feed a GNC-TLS weighted Procrustes rotation estimator (or, when
// configured, a 2-DoF yaw-only Quatro estimator), followed by a
// componentwise adaptive-voting translation estimate over every
// correspondence under the recovered rotation.
type Solver struct {
	cfg Config
	rng *rand.Rand
}

// maxTIMPairs bounds the number of translation-invariant measurements
// built from a correspondence set. Below it every pair is used; above it a
// random subsample is drawn instead, since the pair count grows
// quadratically in the correspondence count.
const maxTIMPairs = 10000

// NewSolver builds a Solver from cfg. seed fixes the PRNG used for TIM
// subsampling on large correspondence sets, so identical inputs and seed
// produce identical solutions.
func NewSolver(cfg Config, seed int64) *Solver {
	return &Solver{cfg: cfg, rng: rand.New(rand.NewSource(seed))}
}

// tim is a translation-invariant measurement: the vector between two
// correspondence's source points and the corresponding vector between
// their target points, paired so that Rotation * srcVec ~= tgtVec.
type tim struct {
	srcVec Vec3
	tgtVec Vec3
	ci, cj int // indices into the correspondence set, kept for inlier reporting
}

// Estimate computes a RegistrationSolution from corr. src and tgt must be
// the same DescriptorSet passed to the Matcher/Prune stages that produced
// corr, since correspondences index into them.
func (s *Solver) Estimate(src, tgt DescriptorSet, corr CorrespondenceSet) RegistrationSolution {
	if len(corr) < 3 {
		return invalidSolution()
	}

	tims := s.buildTIMs(src, tgt, corr)
	if len(tims) == 0 {
		return invalidSolution()
	}

	var rot Mat3
	var rotInliers []int
	var weights []float64
	if s.cfg.UseQuatro {
		rot, weights = s.solveRotationQuatro(tims)
	} else {
		rot, weights = s.solveRotationGNC(tims)
	}

	rotInliers = correspondenceInliers(tims, weights, s.cfg.RotationInlierWeightThresh)
	if len(rotInliers) < 3 {
		return invalidSolution()
	}

	trans, transInliers, ok := s.solveTranslation(src, tgt, corr, rot)
	if !ok {
		return invalidSolution()
	}

	if !finiteSolution(rot, trans) {
		return invalidSolution()
	}

	return RegistrationSolution{
		Rotation:             rot,
		Translation:          trans,
		Valid:                true,
		Scale:                1.0,
		RotationInlierIdx:    rotInliers,
		TranslationInlierIdx: transInliers,
	}
}

// buildTIMs forms translation-invariant measurements from correspondence
// pairs: every pair when the count is small, otherwise a random subsample
// of maxTIMPairs distinct pairs drawn from the solver's seeded PRNG.
func (s *Solver) buildTIMs(src, tgt DescriptorSet, corr CorrespondenceSet) []tim {
	n := len(corr)
	total := n * (n - 1) / 2

	makeTIM := func(i, j int) tim {
		sp := src[corr[i].I].Position
		sq := src[corr[j].I].Position
		tp := tgt[corr[i].J].Position
		tq := tgt[corr[j].J].Position
		return tim{
			srcVec: subV(sq, sp),
			tgtVec: subV(tq, tp),
			ci:     i,
			cj:     j,
		}
	}

	if total <= maxTIMPairs {
		tims := make([]tim, 0, total)
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				tims = append(tims, makeTIM(i, j))
			}
		}
		return tims
	}

	seen := make(map[[2]int]bool, maxTIMPairs)
	tims := make([]tim, 0, maxTIMPairs)
	for len(tims) < maxTIMPairs {
		i := s.rng.Intn(n)
		j := s.rng.Intn(n)
		if i == j {
			continue
		}
		if i > j {
			i, j = j, i
		}
		key := [2]int{i, j}
		if seen[key] {
			continue
		}
		seen[key] = true
		tims = append(tims, makeTIM(i, j))
	}
	return tims
}

func subV(a, b Vec3) Vec3 {
	return Vec3{X: a.X - b.X, Y: a.Y - b.Y, Z: a.Z - b.Z}
}

// finiteSolution rejects numerically broken results: any NaN/Inf entry, or
// a rotation that drifted off SO(3) (non-orthogonal, or determinant not
// +1 within tolerance). A failure here surfaces as an invalid solution,
// never as a silently propagated NaN.
func finiteSolution(rot Mat3, trans Vec3) bool {
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			if math.IsNaN(rot[i][j]) || math.IsInf(rot[i][j], 0) {
				return false
			}
		}
	}
	for _, v := range []float64{trans.X, trans.Y, trans.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	// R^T R must be the identity within 1e-6 per entry.
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += rot[k][i] * rot[k][j]
			}
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(sum-want) > 1e-6 {
				return false
			}
		}
	}

	det := rot[0][0]*(rot[1][1]*rot[2][2]-rot[1][2]*rot[2][1]) -
		rot[0][1]*(rot[1][0]*rot[2][2]-rot[1][2]*rot[2][0]) +
		rot[0][2]*(rot[1][0]*rot[2][1]-rot[1][1]*rot[2][0])
	return det > 0
}

// correspondenceInliers maps GNC-TLS weights, which live in TIM space (one
// entry per correspondence pair), back to indices into the correspondence
// set itself: a correspondence is an inlier if it participates in at least
// one high-weight TIM.
func correspondenceInliers(tims []tim, weights []float64, thresh float64) []int {
	seen := make(map[int]bool)
	for k, w := range weights {
		if w <= thresh {
			continue
		}
		seen[tims[k].ci] = true
		seen[tims[k].cj] = true
	}
	out := make([]int, 0, len(seen))
	for idx := range seen {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

// solveRotationGNC runs graduated non-convexity with a truncated
// least-squares loss over weighted Procrustes rotation fits: each iteration
// refits the rotation with the current per-measurement weights via SVD,
// then updates weights from the residuals with a shrinking threshold mu,
// so the outer GNC loop reweights outliers toward zero instead of taking
// every input point on faith.
func (s *Solver) solveRotationGNC(tims []tim) (Mat3, []float64) {
	n := len(tims)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0
	}

	c := s.cfg.SolverNoiseBound
	residuals := make([]float64, n)

	rot := weightedProcrustes(tims, weights)
	maxResidualSq := 0.0
	for i, t := range tims {
		r := rotatedResidual(rot, t)
		residuals[i] = r
		if rsq := r * r; rsq > maxResidualSq {
			maxResidualSq = rsq
		}
	}

	mu := muInit(maxResidualSq, c)
	for iter := 0; iter < s.cfg.GNCMaxIterations; iter++ {
		rot = weightedProcrustes(tims, weights)

		maxDelta := 0.0
		for i, t := range tims {
			r := rotatedResidual(rot, t)
			residuals[i] = r
			w := tlsWeight(r*r, c, mu)
			if d := math.Abs(w - weights[i]); d > maxDelta {
				maxDelta = d
			}
			weights[i] = w
		}

		mu /= s.cfg.GNCMuDivisor
		if maxDelta < s.cfg.GNCConvergenceThresh {
			break
		}
	}

	return rot, weights
}

// muInit picks a starting control parameter from the convex-relaxation end
// of the GNC schedule (the convex surrogate is the mu -> infinity limit):
// a large finite value when residuals are already within the
// noise bound, otherwise scaled down from the worst squared residual so the
// first reweighting doesn't immediately zero every measurement.
func muInit(maxResidualSq, c float64) float64 {
	denom := maxResidualSq - c*c
	if denom <= 0 {
		return 1e8
	}
	return c * c / denom
}

// tlsWeight is the GNC-TLS weight update
// w_k = (mu*c^2 / (rSq + mu*c^2))^2, where rSq is the squared residual
// r_k = |b_k - R*a_k|^2 and c is the solver noise bound. As mu -> infinity
// this tends to 1 for every measurement (the convex start); as mu shrinks
// toward 0 it downweights measurements in proportion to how far their
// squared residual exceeds mu*c^2.
func tlsWeight(rSq, c, mu float64) float64 {
	c2 := c * c
	denom := rSq + mu*c2
	if denom <= 0 {
		return 1
	}
	w := mu * c2 / denom
	return w * w
}

func rotatedResidual(rot Mat3, t tim) float64 {
	rv := applyMat3(rot, t.srcVec)
	dx := rv.X - t.tgtVec.X
	dy := rv.Y - t.tgtVec.Y
	dz := rv.Z - t.tgtVec.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func applyMat3(m Mat3, v Vec3) Vec3 {
	return Vec3{
		X: m[0][0]*v.X + m[0][1]*v.Y + m[0][2]*v.Z,
		Y: m[1][0]*v.X + m[1][1]*v.Y + m[1][2]*v.Z,
		Z: m[2][0]*v.X + m[2][1]*v.Y + m[2][2]*v.Z,
	}
}

// weightedProcrustes fits the rotation minimizing sum(w_i * |R*src_i -
// tgt_i|^2) via SVD of the weighted cross-covariance matrix.
func weightedProcrustes(tims []tim, weights []float64) Mat3 {
	h := mat.NewDense(3, 3, nil)

	for i, t := range tims {
		w := weights[i]
		if w <= 0 {
			continue
		}
		s := [3]float64{t.srcVec.X, t.srcVec.Y, t.srcVec.Z}
		tg := [3]float64{t.tgtVec.X, t.tgtVec.Y, t.tgtVec.Z}
		for r := 0; r < 3; r++ {
			for cidx := 0; cidx < 3; cidx++ {
				h.Set(r, cidx, h.At(r, cidx)+w*s[r]*tg[cidx])
			}
		}
	}

	var svd mat.SVD
	if !svd.Factorize(h, mat.SVDFull) {
		return Identity3()
	}
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	var ut mat.Dense
	ut.CloneFrom(u.T())

	var r mat.Dense
	r.Mul(&v, &ut)

	det := mat.Det(&r)
	if det < 0 {
		// Flip the sign of V's last column to force a proper rotation
		// (det +1), the standard Kabsch reflection correction.
		for row := 0; row < 3; row++ {
			v.Set(row, 2, -v.At(row, 2))
		}
		r.Mul(&v, &ut)
	}

	var out Mat3
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = r.At(i, j)
		}
	}
	return out
}

// solveRotationQuatro estimates a 2-DoF (yaw-only) rotation about the
// vertical axis, assuming the roll/pitch components are already aligned
// (the ground-aligned-frame assumption Quatro relies on). The z-component
// of every TIM vector is zeroed before fitting so roll/pitch
// noise can't contaminate the yaw estimate, and the same GNC-TLS schedule
// solveRotationGNC runs - graduated reweighting with mu shrinking by
// GNCMuDivisor each round - is applied on top of the planar fit, just with
// the closed-form 2-D weighted Procrustes (weightedYawProcrustes) standing
// in for the 3-D SVD solve.
func (s *Solver) solveRotationQuatro(tims []tim) (Mat3, []float64) {
	n := len(tims)
	weights := make([]float64, n)
	for i := range weights {
		weights[i] = 1.0
	}

	planar := zeroZTIMs(tims)
	c := s.cfg.SolverNoiseBound
	residuals := make([]float64, n)

	rot := yawMat3(weightedYawProcrustes(planar, weights))
	maxResidualSq := 0.0
	for i, t := range planar {
		r := rotatedResidual(rot, t)
		residuals[i] = r
		if rsq := r * r; rsq > maxResidualSq {
			maxResidualSq = rsq
		}
	}

	mu := muInit(maxResidualSq, c)
	for iter := 0; iter < s.cfg.GNCMaxIterations; iter++ {
		rot = yawMat3(weightedYawProcrustes(planar, weights))

		maxDelta := 0.0
		for i, t := range planar {
			r := rotatedResidual(rot, t)
			residuals[i] = r
			w := tlsWeight(r*r, c, mu)
			if d := math.Abs(w - weights[i]); d > maxDelta {
				maxDelta = d
			}
			weights[i] = w
		}

		mu /= s.cfg.GNCMuDivisor
		if maxDelta < s.cfg.GNCConvergenceThresh {
			break
		}
	}

	return rot, weights
}

// zeroZTIMs returns a copy of tims with the z-component of both the source
// and target vectors cleared, the planar projection Quatro's yaw-only fit
// operates on.
func zeroZTIMs(tims []tim) []tim {
	out := make([]tim, len(tims))
	for i, t := range tims {
		out[i] = tim{
			srcVec: Vec3{X: t.srcVec.X, Y: t.srcVec.Y},
			tgtVec: Vec3{X: t.tgtVec.X, Y: t.tgtVec.Y},
			ci:     t.ci,
			cj:     t.cj,
		}
	}
	return out
}

// weightedYawProcrustes fits the yaw angle minimizing sum(w_k *
// |R(yaw)*srcVec_k - tgtVec_k|^2) in closed form, the planar analog of
// weightedProcrustes: for a pure 2-D rotation the optimal angle is the
// atan2 of the weighted cross and dot terms, without needing an SVD.
func weightedYawProcrustes(tims []tim, weights []float64) float64 {
	var sxx, sxy float64
	for i, t := range tims {
		w := weights[i]
		if w <= 0 {
			continue
		}
		ax, ay := t.srcVec.X, t.srcVec.Y
		bx, by := t.tgtVec.X, t.tgtVec.Y
		sxx += w * (ax*bx + ay*by)
		sxy += w * (ax*by - ay*bx)
	}
	return math.Atan2(sxy, sxx)
}

func yawOf(m Mat3) float64 {
	return math.Atan2(m[1][0], m[0][0])
}

func yawMat3(yaw float64) Mat3 {
	cosv, sinv := math.Cos(yaw), math.Sin(yaw)
	return Mat3{
		{cosv, -sinv, 0},
		{sinv, cosv, 0},
		{0, 0, 1},
	}
}

// solveTranslation estimates the translation componentwise from every
// correspondence in corr using adaptive voting: for each axis, the candidate
// translation values tgt_k - R*src_k are sorted and the densest interval of
// width 2*SolverNoiseBound is taken as the consensus, its members becoming
// the translation inlier set for that axis (intersected across axes).
func (s *Solver) solveTranslation(src, tgt DescriptorSet, corr CorrespondenceSet, rot Mat3) (Vec3, []int, bool) {
	n := len(corr)
	if n == 0 {
		return Vec3{}, nil, false
	}

	candidates := make([]Vec3, n)
	for k, c := range corr {
		sp := applyMat3(rot, src[c.I].Position)
		tp := tgt[c.J].Position
		candidates[k] = Vec3{X: tp.X - sp.X, Y: tp.Y - sp.Y, Z: tp.Z - sp.Z}
	}

	xVal, xIn := adaptiveVote(axisValues(candidates, 0), s.cfg.SolverNoiseBound)
	yVal, yIn := adaptiveVote(axisValues(candidates, 1), s.cfg.SolverNoiseBound)
	zVal, zIn := adaptiveVote(axisValues(candidates, 2), s.cfg.SolverNoiseBound)

	if len(xIn) == 0 || len(yIn) == 0 || len(zIn) == 0 {
		return Vec3{}, nil, false
	}

	inSet := make(map[int]int, n)
	for _, i := range xIn {
		inSet[i]++
	}
	for _, i := range yIn {
		inSet[i]++
	}
	for _, i := range zIn {
		inSet[i]++
	}
	var inliers []int
	for i := 0; i < n; i++ {
		if inSet[i] == 3 {
			inliers = append(inliers, i)
		}
	}
	if len(inliers) == 0 {
		// No point satisfied all three axes simultaneously: fall back to
		// the union so translation validity doesn't depend on an
		// accidental empty intersection.
		seen := make(map[int]bool)
		for i := range inSet {
			if !seen[i] {
				inliers = append(inliers, i)
				seen[i] = true
			}
		}
	}

	return Vec3{X: xVal, Y: yVal, Z: zVal}, inliers, true
}

func axisValues(v []Vec3, axis int) []float64 {
	out := make([]float64, len(v))
	for i, p := range v {
		switch axis {
		case 0:
			out[i] = p.X
		case 1:
			out[i] = p.Y
		default:
			out[i] = p.Z
		}
	}
	return out
}

// adaptiveVote finds the interval of width 2*bound containing the most
// values and returns the mean of those values plus the indices it covers.
func adaptiveVote(values []float64, bound float64) (float64, []int) {
	n := len(values)
	if n == 0 {
		return 0, nil
	}
	type iv struct {
		val float64
		idx int
	}
	sorted := make([]iv, n)
	for i, v := range values {
		sorted[i] = iv{v, i}
	}
	for i := 1; i < n; i++ {
		for j := i; j > 0 && sorted[j].val < sorted[j-1].val; j-- {
			sorted[j], sorted[j-1] = sorted[j-1], sorted[j]
		}
	}

	bestCount := 0
	bestLo, bestHi := 0, 0
	lo := 0
	for hi := 0; hi < n; hi++ {
		for sorted[hi].val-sorted[lo].val > 2*bound {
			lo++
		}
		if hi-lo+1 > bestCount {
			bestCount = hi - lo + 1
			bestLo, bestHi = lo, hi
		}
	}

	var sum float64
	idx := make([]int, 0, bestCount)
	for k := bestLo; k <= bestHi; k++ {
		sum += sorted[k].val
		idx = append(idx, sorted[k].idx)
	}
	return sum / float64(len(idx)), idx
}
