package decision

import (
	"math"
	"math/rand"
	"testing"
)

var negInf = float32(math.Inf(-1))

func TestDecide(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		label  int
		score  float32
	}{
		{"clear winner", []float32{0.1, 0.9, 0.05, 0, 0, 0, 0, 0, 0, 0}, 1, 0.9},
		{"tie goes to first", []float32{0.5, 0.5, 0, 0, 0, 0, 0, 0, 0, 0}, 0, 0.5},
		{"last index", []float32{-3, -2, -1}, 2, -1},
		{"negative logits", []float32{-7.5, -0.25, -9}, 1, -0.25},
		{"single", []float32{42}, 0, 42},
		{"all negative infinity", []float32{negInf, negInf, negInf}, 0, negInf},
		{"infinity after negative infinity", []float32{negInf, float32(math.Inf(1))}, 1, float32(math.Inf(1))},
	}
	for _, tt := range tests {
		got := Decide(tt.scores)
		if got.Label != tt.label || got.Score != tt.score {
			t.Errorf("%s: Decide = (%d, %v), expected (%d, %v)", tt.name, got.Label, got.Score, tt.label, tt.score)
		}
	}
}

func TestDecideEmpty(t *testing.T) {
	if got := Decide(nil); got.Label != -1 {
		t.Fatalf("expected label -1 for empty vector, got %d", got.Label)
	}
}

func TestDecideIsFirstMaximum(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for trial := 0; trial < 500; trial++ {
		scores := make([]float32, 10)
		for i := range scores {
			// Few distinct values so ties are common.
			scores[i] = float32(rng.Intn(4))
		}
		got := Decide(scores)
		for j, s := range scores {
			if s > scores[got.Label] {
				t.Fatalf("%v: index %d beats chosen %d", scores, j, got.Label)
			}
			if s == scores[got.Label] && j < got.Label {
				t.Fatalf("%v: tie at lower index %d than chosen %d", scores, j, got.Label)
			}
		}
	}
}

func TestProbabilities(t *testing.T) {
	probs := Probabilities([]float32{1, 2, 3, 1000})
	sum := 0.0
	for _, p := range probs {
		if math.IsNaN(p) || p < 0 || p > 1 {
			t.Fatalf("invalid probability %v in %v", p, probs)
		}
		sum += p
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("probabilities sum to %v", sum)
	}
	if probs[3] < 0.999 {
		t.Fatalf("expected dominant class, got %v", probs[3])
	}

	even := Probabilities([]float32{0, 0})
	if math.Abs(even[0]-0.5) > 1e-12 || math.Abs(even[1]-0.5) > 1e-12 {
		t.Fatalf("expected even split, got %v", even)
	}
	if Probabilities(nil) != nil {
		t.Fatalf("expected nil for empty vector")
	}
}

func TestProbabilitiesInfiniteLogits(t *testing.T) {
	tests := []struct {
		name   string
		scores []float32
		want   []float64
	}{
		{"all negative infinity", []float32{negInf, negInf}, []float64{0.5, 0.5}},
		{"positive infinity wins", []float32{1, float32(math.Inf(1)), negInf}, []float64{0, 1, 0}},
	}
	for _, tt := range tests {
		got := Probabilities(tt.scores)
		for i := range tt.want {
			if got[i] != tt.want[i] {
				t.Errorf("%s: Probabilities = %v, expected %v", tt.name, got, tt.want)
				break
			}
		}
	}
}

func TestRank(t *testing.T) {
	ranked := Rank([]float32{0.2, 0.7, 0.2, 0.9})
	want := []int{3, 1, 0, 2}
	if len(ranked) != len(want) {
		t.Fatalf("expected %d candidates, got %d", len(want), len(ranked))
	}
	for i, label := range want {
		if ranked[i].Label != label {
			t.Fatalf("position %d: got label %d, expected %d (%+v)", i, ranked[i].Label, label, ranked)
		}
	}
	if ranked[0].Label != Decide([]float32{0.2, 0.7, 0.2, 0.9}).Label {
		t.Fatalf("rank head disagrees with Decide")
	}
	if ranked[0].Probability <= ranked[1].Probability {
		t.Fatalf("probabilities should follow score order: %+v", ranked)
	}
}
