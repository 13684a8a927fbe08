package registration

import (
	"fmt"
	"sort"

	"github.com/lvlath/go/core"
)

// Prune applies the configured ROBIN operator to a correspondence set:
// two correspondences are compatible (an edge in the compatibility graph)
// when the discrepancy between their source and target pairwise distances
// is within twice the noise bound and they share neither a source nor a
// target keypoint. This is the same length-preservation idea as the
// matcher's tuple filter (which bounds the length ratio of sampled triples
// instead), applied here pairwise with an absolute bound and fed into
// exact graph pruning rather than random sampling.
func Prune(cfg Config, src, tgt DescriptorSet, corr CorrespondenceSet) CorrespondenceSet {
	if cfg.RobinMode == RobinNone || len(corr) < 2 {
		return corr
	}

	g := buildCompatibilityGraph(src, tgt, corr, cfg.RobinNoiseBound)

	var kept []string
	switch cfg.RobinMode {
	case RobinMaxClique:
		if g.VertexCount() <= cfg.MaxCliqueVertices {
			kept = maxClique(g)
		} else {
			kept = maxKCore(g)
		}
	default:
		kept = maxKCore(g)
	}

	keepIdx := make(map[int]bool, len(kept))
	for _, id := range kept {
		keepIdx[vertexIndex(id)] = true
	}

	out := make(CorrespondenceSet, 0, len(kept))
	for i, c := range corr {
		if keepIdx[i] {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].I != out[b].I {
			return out[a].I < out[b].I
		}
		return out[a].J < out[b].J
	})
	return out
}

func vertexID(i int) string { return fmt.Sprintf("c%d", i) }

func vertexIndex(id string) int {
	var i int
	fmt.Sscanf(id, "c%d", &i)
	return i
}

// buildCompatibilityGraph adds one vertex per correspondence and an edge
// between every pair that shares neither a source nor a target keypoint and
// whose pairwise distance is consistent within 2*noiseBound. The graph is
// built once, then the pruning operators
// repeatedly query and mutate its degree state.
func buildCompatibilityGraph(src, tgt DescriptorSet, corr CorrespondenceSet, noiseBound float64) *core.Graph {
	g, _ := core.NewGraph()
	for i := range corr {
		g.AddVertex(vertexID(i))
	}

	thresh := 2 * noiseBound
	for i := 0; i < len(corr); i++ {
		for j := i + 1; j < len(corr); j++ {
			if corr[i].I == corr[j].I || corr[i].J == corr[j].J {
				continue
			}
			sd := posDist(src[corr[i].I].Position, src[corr[j].I].Position)
			td := posDist(tgt[corr[i].J].Position, tgt[corr[j].J].Position)
			if absf(sd-td) <= thresh {
				// Weight 0: the graph is unweighted and core.AddEdge
				// rejects non-zero weights on an unweighted graph.
				g.AddEdge(vertexID(i), vertexID(j), 0)
			}
		}
	}
	return g
}

func absf(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

// maxKCore repeatedly removes the lowest-degree vertex until the graph is
// empty, keeping the remaining vertex set with the highest minimum degree
// seen along the way (the first, hence largest, set to reach that degree),
// the standard peeling algorithm for the degeneracy ordering.
func maxKCore(g *core.Graph) []string {
	remaining := append([]string(nil), g.Vertices()...)
	sort.Strings(remaining)

	best := append([]string(nil), remaining...)
	bestMinDeg := minDegree(g, remaining)

	for len(remaining) > 0 {
		lowID, lowDeg := "", -1
		for _, id := range remaining {
			_, _, deg, err := g.Degree(id)
			if err != nil {
				continue
			}
			if lowDeg < 0 || deg < lowDeg {
				lowID, lowDeg = id, deg
			}
		}
		if lowID == "" {
			break
		}
		g.RemoveVertex(lowID)
		remaining = removeID(remaining, lowID)

		if len(remaining) == 0 {
			break
		}
		md := minDegree(g, remaining)
		if md > bestMinDeg {
			bestMinDeg = md
			best = append([]string(nil), remaining...)
		}
	}

	if len(best) == 0 {
		return nil
	}
	return best
}

func minDegree(g *core.Graph, ids []string) int {
	min := -1
	for _, id := range ids {
		_, _, deg, err := g.Degree(id)
		if err != nil {
			continue
		}
		if min < 0 || deg < min {
			min = deg
		}
	}
	if min < 0 {
		return 0
	}
	return min
}

func removeID(ids []string, target string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

// maxClique finds an exact maximum clique via branch-and-bound, bounding
// each branch by the candidate set size (a clique cannot exceed the number
// of vertices still mutually reachable). Intended only for small
// compatibility graphs (bounded by Config.MaxCliqueVertices); Prune falls
// back to maxKCore above that bound.
func maxClique(g *core.Graph) []string {
	adj := make(map[string]map[string]bool)
	ids := g.Vertices()
	for _, id := range ids {
		nbrs, _ := g.NeighborIDs(id)
		set := make(map[string]bool, len(nbrs))
		for _, n := range nbrs {
			set[n] = true
		}
		adj[id] = set
	}
	sort.Strings(ids)

	var best []string
	var branch func(clique, candidates []string)
	branch = func(clique, candidates []string) {
		if len(clique)+len(candidates) <= len(best) {
			return
		}
		if len(candidates) == 0 {
			if len(clique) > len(best) {
				best = append([]string(nil), clique...)
			}
			return
		}
		for i, v := range candidates {
			rest := candidates[i+1:]
			var next []string
			for _, u := range rest {
				if adj[v][u] {
					next = append(next, u)
				}
			}
			branch(append(clique, v), next)
		}
	}
	branch(nil, ids)
	return best
}
