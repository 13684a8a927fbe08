package registration

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"

	"github.com/kwv/pcreg/registration/spatialindex"
)

// Keypoint pairs a descriptor with the index of the point it was computed
// from in the PointCloud passed to ExtractDescriptors. Points that fail the
// minimum-neighbor or linearity test never produce a Keypoint.
type Keypoint struct {
	SourceIdx  int
	Position   Vec3
	Descriptor Descriptor
	Normal     Vec3
}

// DescriptorSet is the ordered output of ExtractDescriptors. Order is by
// ascending SourceIdx, independent of extraction concurrency.
type DescriptorSet []Keypoint

// Extractor computes local geometric descriptors for a point cloud:
// per-point normal estimation via PCA over a radius neighborhood,
// followed by a 33-bin simplified point-feature-histogram accumulated over
// a (possibly larger) second radius neighborhood.
type Extractor struct {
	cfg     Config
	backend spatialindex.Backend
}

// NewExtractor builds an Extractor. backend selects the spatial index used
// internally for neighborhood queries.
func NewExtractor(cfg Config, backend spatialindex.Backend) *Extractor {
	return &Extractor{cfg: cfg, backend: backend}
}

// Extract computes descriptors for every point in cloud whose
// NormalRadius-neighborhood has at least MinNeighbors points and whose
// linearity is below ThrLinearity. origin is the sensor origin used to
// disambiguate normal sign (normals are oriented to face the origin).
func (e *Extractor) Extract(cloud PointCloud, origin Vec3) DescriptorSet {
	idx := spatialindex.New(e.backend)
	coords := toCoords(cloud)
	idx.Build(coords)

	out := make(DescriptorSet, 0, len(cloud))
	for i, p := range cloud {
		q := coords[i]
		nbrIdx, _ := idx.QueryRadius(q, e.cfg.NormalRadius)
		if len(nbrIdx) < e.cfg.MinNeighbors {
			continue
		}

		normal, linearity, ok := estimateNormal(coords, nbrIdx)
		if !ok || linearity >= e.cfg.ThrLinearity {
			continue
		}
		normal = orientToward(normal, p, origin)

		fpfhIdx, _ := idx.QueryRadius(q, e.cfg.FPFHRadius)
		if len(fpfhIdx) < e.cfg.MinNeighbors {
			continue
		}
		normals := make([]Vec3, len(fpfhIdx))
		for k, ni := range fpfhIdx {
			nn, _, ok := estimateNormal(coords, nbrIndicesWithin(idx, coords[ni], e.cfg.NormalRadius))
			if !ok {
				nn = normal
			}
			normals[k] = orientToward(nn, cloud[ni], origin)
		}

		desc := simplifiedPFH(coords, fpfhIdx, normals, q, normal)
		pos := Vec3{X: float64(p.X), Y: float64(p.Y), Z: float64(p.Z)}
		out = append(out, Keypoint{SourceIdx: i, Position: pos, Descriptor: desc, Normal: normal})
	}

	sort.Slice(out, func(a, b int) bool { return out[a].SourceIdx < out[b].SourceIdx })
	return out
}

func nbrIndicesWithin(idx spatialindex.Index, q []float64, r float64) []int {
	nbrIdx, _ := idx.QueryRadius(q, r)
	return nbrIdx
}

func toCoords(cloud PointCloud) [][]float64 {
	coords := make([][]float64, len(cloud))
	for i, p := range cloud {
		coords[i] = []float64{float64(p.X), float64(p.Y), float64(p.Z)}
	}
	return coords
}

// estimateNormal fits the least-squares normal to the neighborhood as the
// eigenvector of the smallest eigenvalue of the neighborhood's covariance
// matrix. gonum.EigenSym returns eigenvalues ascending; linearity uses the
// descending convention lambda0>=lambda1>=lambda2, so the two largest are
// remapped before computing (lambda0-lambda1)/lambda0 - 0 when the two
// largest eigenvalues are equal (spread evenly in two directions, as in an
// evenly sampled planar patch) and close to 1 for a linear (edge-like) one.
func estimateNormal(coords [][]float64, nbrIdx []int) (Vec3, float64, bool) {
	n := len(nbrIdx)
	if n < 3 {
		return Vec3{}, 0, false
	}

	var cx, cy, cz float64
	for _, i := range nbrIdx {
		cx += coords[i][0]
		cy += coords[i][1]
		cz += coords[i][2]
	}
	cx /= float64(n)
	cy /= float64(n)
	cz /= float64(n)

	data := make([]float64, 9)
	for _, i := range nbrIdx {
		dx := coords[i][0] - cx
		dy := coords[i][1] - cy
		dz := coords[i][2] - cz
		data[0] += dx * dx
		data[1] += dx * dy
		data[2] += dx * dz
		data[4] += dy * dy
		data[5] += dy * dz
		data[8] += dz * dz
	}
	data[3] = data[1]
	data[6] = data[2]
	data[7] = data[5]
	sym := mat.NewSymDense(3, data)

	var eig mat.EigenSym
	if ok := eig.Factorize(sym, true); !ok {
		return Vec3{}, 0, false
	}
	values := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// gonum orders eigenvalues ascending; the smallest-variance direction
	// (the surface normal) is column 0. Linearity uses the descending
	// convention lambda0>=lambda1>=lambda2, so remap before computing it.
	lambda0, lambda1 := values[2], values[1]
	if lambda0 <= 0 {
		return Vec3{}, 0, false
	}
	linearity := (lambda0 - lambda1) / lambda0

	normal := Vec3{X: vecs.At(0, 0), Y: vecs.At(1, 0), Z: vecs.At(2, 0)}
	return normalize(normal), linearity, true
}

func normalize(v Vec3) Vec3 {
	n := sqrtf(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
	if n == 0 {
		return v
	}
	return Vec3{X: v.X / n, Y: v.Y / n, Z: v.Z / n}
}

func sqrtf(x float64) float64 {
	if x <= 0 {
		return 0
	}
	return math.Sqrt(x)
}

func orientToward(n Vec3, p Point, origin Vec3) Vec3 {
	toOrigin := Vec3{X: origin.X - float64(p.X), Y: origin.Y - float64(p.Y), Z: origin.Z - float64(p.Z)}
	if dot(n, toOrigin) < 0 {
		return Vec3{X: -n.X, Y: -n.Y, Z: -n.Z}
	}
	return n
}

func dot(a, b Vec3) float64 {
	return a.X*b.X + a.Y*b.Y + a.Z*b.Z
}

// simplifiedPFH accumulates a 33-bin histogram (three 11-bin angle
// histograms) describing the relative orientation of each neighbor's normal
// to the query normal, L1-normalized to sum 100 as a fixed-scale signature
// independent of neighborhood size.
func simplifiedPFH(coords [][]float64, nbrIdx []int, normals []Vec3, q []float64, qNormal Vec3) Descriptor {
	var desc Descriptor
	const bins = 11

	for k, i := range nbrIdx {
		dx := coords[i][0] - q[0]
		dy := coords[i][1] - q[1]
		dz := coords[i][2] - q[2]
		d := sqrtf(dx*dx + dy*dy + dz*dz)
		if d == 0 {
			continue
		}
		u := qNormal
		v := cross(u, Vec3{X: dx / d, Y: dy / d, Z: dz / d})
		vn := normalize(v)
		w := cross(u, vn)

		nt := normals[k]
		f1 := dot(vn, nt)
		f2 := dot(u, Vec3{X: dx / d, Y: dy / d, Z: dz / d})
		f3 := math.Atan2(dot(w, nt), dot(u, nt))

		addToBin(desc[0:bins], f1, -1, 1)
		addToBin(desc[bins:2*bins], f2, -1, 1)
		addToBin(desc[2*bins:3*bins], f3, -3.14159265, 3.14159265)
	}

	return l1Normalize(desc, 100)
}

func cross(a, b Vec3) Vec3 {
	return Vec3{
		X: a.Y*b.Z - a.Z*b.Y,
		Y: a.Z*b.X - a.X*b.Z,
		Z: a.X*b.Y - a.Y*b.X,
	}
}

func addToBin(hist []float64, value, lo, hi float64) {
	span := hi - lo
	if span <= 0 {
		return
	}
	frac := (value - lo) / span
	if frac < 0 {
		frac = 0
	}
	if frac >= 1 {
		frac = 0.999999
	}
	bin := int(frac * float64(len(hist)))
	if bin < 0 {
		bin = 0
	}
	if bin >= len(hist) {
		bin = len(hist) - 1
	}
	hist[bin]++
}

func l1Normalize(d Descriptor, target float64) Descriptor {
	var sum float64
	for _, v := range d {
		sum += v
	}
	if sum == 0 {
		return d
	}
	var out Descriptor
	for i, v := range d {
		out[i] = v / sum * target
	}
	return out
}
