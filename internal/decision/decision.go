package decision

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
)

// Prediction is the winning class of one output vector.
type Prediction struct {
	Label int     `json:"label"`
	Score float32 `json:"score"`
}

// Candidate is one class in a confidence ordering.
type Candidate struct {
	Label       int     `json:"label"`
	Score       float32 `json:"score"`
	Probability float64 `json:"probability"`
}

// Decide returns the arg-max of scores. Ties go to the lowest index. An empty
// vector yields label -1; any other vector yields a valid index.
func Decide(scores []float32) Prediction {
	if len(scores) == 0 {
		return Prediction{Label: -1, Score: float32(math.Inf(-1))}
	}
	best := Prediction{Label: 0, Score: scores[0]}
	for i, s := range scores[1:] {
		if s > best.Score {
			best = Prediction{Label: i + 1, Score: s}
		}
	}
	return best
}

// Probabilities applies softmax to scores.
func Probabilities(scores []float32) []float64 {
	if len(scores) == 0 {
		return nil
	}
	logits := make([]float64, len(scores))
	for i, s := range scores {
		logits[i] = float64(s)
	}
	lse := floats.LogSumExp(logits)
	if math.IsInf(lse, 0) {
		// Infinite logits: share the mass among the maximal entries.
		max := floats.Max(logits)
		n := 0
		for _, l := range logits {
			if l == max {
				n++
			}
		}
		for i, l := range logits {
			logits[i] = 0
			if l == max {
				logits[i] = 1 / float64(n)
			}
		}
		return logits
	}
	for i := range logits {
		logits[i] = math.Exp(logits[i] - lse)
	}
	return logits
}

// Rank orders every class by descending score, keeping index order on ties.
func Rank(scores []float32) []Candidate {
	probs := Probabilities(scores)
	out := make([]Candidate, len(scores))
	for i, s := range scores {
		out[i] = Candidate{Label: i, Score: s, Probability: probs[i]}
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Score > out[b].Score
	})
	return out
}
