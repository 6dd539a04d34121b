package solver

const (
	// DefaultMinImprovement is the relative gain a 2-opt swap must exceed
	// (0.1% of the current tour length) to be applied.
	DefaultMinImprovement = 0.001
	// DefaultMax2OptIterations caps restart rounds of the scan.
	DefaultMax2OptIterations = 100
)

// tourLength sums matrix distances along order; when closed, the return
// edge to the first stop is included.
func tourLength(dist [][]float64, order []int, closed bool) float64 {
	total := 0.0
	for i := 0; i < len(order)-1; i++ {
		total += dist[order[i]][order[i+1]]
	}
	if closed && len(order) > 1 {
		total += dist[order[len(order)-1]][order[0]]
	}
	return total
}

// twoOptImprove runs first-improvement 2-opt over order (entries are matrix
// indices). A swap replacing edges (i,i+1) and (j,j+1) with (i,j) and
// (i+1,j+1) reverses the segment between them; it is applied when its delta
// beats minImprove×current length, and the scan restarts. Never worsens the
// tour and terminates: each accepted swap strictly shortens it and the
// neighborhood is finite.
func twoOptImprove(dist [][]float64, order []int, minImprove float64, maxIter int) []int {
	if minImprove <= 0 {
		minImprove = DefaultMinImprovement
	}
	if maxIter <= 0 {
		maxIter = DefaultMax2OptIterations
	}
	best := append([]int(nil), order...)
	n := len(best)
	if n < 4 {
		return best
	}
	length := tourLength(dist, best, false)
	for iter := 0; iter < maxIter; iter++ {
		improved := false
	scan:
		for i := 0; i < n-3; i++ {
			for j := i + 2; j < n-1; j++ {
				delta := dist[best[i]][best[j]] + dist[best[i+1]][best[j+1]] -
					dist[best[i]][best[i+1]] - dist[best[j]][best[j+1]]
				if delta < -minImprove*length {
					reverse(best, i+1, j)
					length += delta
					improved = true
					break scan
				}
			}
		}
		if !improved {
			break
		}
	}
	return best
}

func reverse(order []int, i, j int) {
	for i < j {
		order[i], order[j] = order[j], order[i]
		i++
		j--
	}
}
