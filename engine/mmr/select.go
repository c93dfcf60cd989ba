// Package mmr implements Maximal Marginal Relevance selection: a greedy
// re-ranking that trades query relevance against redundancy with already
// selected candidates.
package mmr

// Reconstructor returns the stored vector for an identifier. Satisfied by
// *semantic.Index.
type Reconstructor interface {
	Reconstruct(id int64) ([]float32, error)
}

// Select greedily picks min(k, len(candidates)) identifiers from candidates,
// balancing relevance to query against similarity to prior picks.
//
// lambda is clamped to [0,1]: 1 is pure relevance (top-k by dot product),
// 0 is pure diversity. Candidates must be in search-rank order; ties in score
// break toward the earlier rank. If any candidate cannot be reconstructed the
// whole selection falls back to the first k candidates unchanged; there is no
// partial diversity.
func Select(rec Reconstructor, query []float32, candidates []int64, k int, lambda float32) []int64 {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}
	if k > len(candidates) {
		k = len(candidates)
	}
	if lambda < 0 {
		lambda = 0
	} else if lambda > 1 {
		lambda = 1
	}

	// Reconstruct every candidate once, up front.
	vecs := make([][]float32, len(candidates))
	for i, id := range candidates {
		v, err := rec.Reconstruct(id)
		if err != nil {
			return topK(candidates, k)
		}
		vecs[i] = v
	}

	relevance := make([]float32, len(candidates))
	for i, v := range vecs {
		relevance[i] = dot(query, v)
	}

	selected := make([]int, 0, k)
	taken := make([]bool, len(candidates))

	// First pick: highest relevance, earliest rank on ties.
	first := 0
	for i := 1; i < len(candidates); i++ {
		if relevance[i] > relevance[first] {
			first = i
		}
	}
	selected = append(selected, first)
	taken[first] = true

	// Subsequent picks maximize lambda*relevance - (1-lambda)*maxSimToSelected.
	for len(selected) < k {
		best := -1
		var bestScore float32
		for i := range candidates {
			if taken[i] {
				continue
			}
			var maxSim float32
			for j, s := range selected {
				sim := dot(vecs[i], vecs[s])
				if j == 0 || sim > maxSim {
					maxSim = sim
				}
			}
			score := lambda*relevance[i] - (1-lambda)*maxSim
			if best == -1 || score > bestScore {
				best = i
				bestScore = score
			}
		}
		if best == -1 {
			break
		}
		selected = append(selected, best)
		taken[best] = true
	}

	out := make([]int64, len(selected))
	for i, idx := range selected {
		out[i] = candidates[idx]
	}
	return out
}

func topK(candidates []int64, k int) []int64 {
	return append([]int64(nil), candidates[:k]...)
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
