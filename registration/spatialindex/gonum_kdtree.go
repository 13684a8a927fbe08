package spatialindex

import (
	"sort"

	"gonum.org/v1/gonum/spatial/kdtree"
)

// taggedPoint is a kdtree.Comparable carrying the original index of the
// point alongside its coordinates, so tree queries can be mapped back to
// the caller's point ordering. gonum's own kdtree.Point type has no room
// for payload, so a custom Comparable is the documented extension point.
type taggedPoint struct {
	coords []float64
	idx    int
}

func (p *taggedPoint) Compare(c kdtree.Comparable, d kdtree.Dim) float64 {
	q := c.(*taggedPoint)
	return p.coords[d] - q.coords[d]
}

func (p *taggedPoint) Dims() int { return len(p.coords) }

func (p *taggedPoint) Distance(c kdtree.Comparable) float64 {
	q := c.(*taggedPoint)
	return sqDist(p.coords, q.coords)
}

// taggedPoints implements kdtree.Interface over a slice of *taggedPoint,
// following the same Pivot-via-Plane construction gonum's built-in Points
// type uses for plain []float64 points.
type taggedPoints []*taggedPoint

func (t taggedPoints) Index(i int) kdtree.Comparable { return t[i] }
func (t taggedPoints) Len() int                      { return len(t) }
func (t taggedPoints) Slice(start, end int) kdtree.Interface { return t[start:end] }

func (t taggedPoints) Pivot(d kdtree.Dim) int {
	return plane{taggedPoints: t, dim: d}.Pivot()
}

// plane sorts/partitions taggedPoints along a single dimension, the way
// gonum's internal Plane type does for its own Points implementation.
type plane struct {
	taggedPoints
	dim kdtree.Dim
}

func (p plane) Less(i, j int) bool {
	return p.taggedPoints[i].coords[p.dim] < p.taggedPoints[j].coords[p.dim]
}
func (p plane) Swap(i, j int) {
	p.taggedPoints[i], p.taggedPoints[j] = p.taggedPoints[j], p.taggedPoints[i]
}

// Pivot fully sorts the plane along its dimension and returns the median's
// index, a full sort standing in for gonum's unexported partition helpers.
func (p plane) Pivot() int {
	sort.Sort(p)
	return p.Len() / 2
}

// gonumIndex adapts a gonum kdtree.Tree to the Index interface.
type gonumIndex struct {
	tree   *kdtree.Tree
	points taggedPoints
}

func newGonumIndex() *gonumIndex {
	return &gonumIndex{}
}

func (g *gonumIndex) Build(points [][]float64) error {
	tp := make(taggedPoints, len(points))
	for i, p := range points {
		tp[i] = &taggedPoint{coords: p, idx: i}
	}
	g.points = tp
	g.tree = kdtree.New(tp, true)
	return nil
}

func (g *gonumIndex) Query(q []float64, k int) ([]int, []float64) {
	target := &taggedPoint{coords: q, idx: -1}
	keeper := kdtree.NewNKeeper(k)
	g.tree.NearestSet(keeper, target)

	results := make([]scored, 0, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		tp := cd.Comparable.(*taggedPoint)
		results = append(results, scored{tp.idx, cd.Dist})
	}
	sortScored(results)
	idx := make([]int, len(results))
	dist := make([]float64, len(results))
	for i, s := range results {
		idx[i] = s.idx
		dist[i] = s.d
	}
	return idx, dist
}

func (g *gonumIndex) QueryRadius(q []float64, r float64) ([]int, []float64) {
	target := &taggedPoint{coords: q, idx: -1}
	keeper := kdtree.NewDistKeeper(r * r)
	g.tree.NearestSet(keeper, target)

	results := make([]scored, 0, len(keeper.Heap))
	for _, cd := range keeper.Heap {
		if cd.Comparable == nil {
			continue
		}
		tp := cd.Comparable.(*taggedPoint)
		results = append(results, scored{tp.idx, cd.Dist})
	}
	sortScored(results)
	idx := make([]int, len(results))
	dist := make([]float64, len(results))
	for i, s := range results {
		idx[i] = s.idx
		dist[i] = s.d
	}
	return idx, dist
}
