package model

import "strconv"

// Metadata is the optional <name>.json file next to a model.
type Metadata struct {
	Classes []string `json:"classes"`
}

// Info describes a loaded model's bound input and output.
type Info struct {
	Name        string   `json:"name"`
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
}

type PredictionRequest struct {
	Image []float32 `json:"image"`
}

type PredictionResponse struct {
	Model       string             `json:"model"`
	Class       string             `json:"class"`
	Label       int                `json:"label"`
	Score       float32            `json:"score"`
	Confidence  float64            `json:"confidence"`
	Predictions map[string]float32 `json:"predictions"`
}

// ClassName returns the label for idx, falling back to the index itself.
func (m *Info) ClassName(idx int) string {
	if idx >= 0 && idx < len(m.Classes) {
		return m.Classes[idx]
	}
	return strconv.Itoa(idx)
}

func defaultClasses(n int) []string {
	classes := make([]string, n)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return classes
}
