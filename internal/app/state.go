package app

import "strconv"

type Phase int

const (
	Idle Phase = iota
	Loading
	Ready
	Predicting
	Predicted
	Failed
)

var phaseNames = map[Phase]string{
	Idle:       "idle",
	Loading:    "loading",
	Ready:      "ready",
	Predicting: "predicting",
	Predicted:  "predicted",
	Failed:     "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "phase(" + strconv.Itoa(int(p)) + ")"
}

type ErrorKind int

const (
	NoError ErrorKind = iota
	ModelLoadFailure
	PredictBeforeReady
	InferenceFailure
)

func (k ErrorKind) String() string {
	switch k {
	case ModelLoadFailure:
		return "model_load_failure"
	case PredictBeforeReady:
		return "predict_before_ready"
	case InferenceFailure:
		return "inference_failure"
	default:
		return ""
	}
}

// State is what the reporter renders. Label and Score are meaningful only
// in the Predicted phase; Kind and Message only in Failed.
type State struct {
	Phase       Phase
	Model       string
	ModelReady  bool
	Label       int
	Class       string
	Score       float32
	Probability float64
	Kind        ErrorKind
	Message     string
}

// Notice is a user-facing message that does not change state.
type Notice struct {
	Kind    ErrorKind
	Message string
}

type Tone string

const (
	TonePlain   Tone = "plain"
	ToneSuccess Tone = "success"
	ToneDanger  Tone = "danger"
)

// View is the rendered form of a State.
type View struct {
	Phase  string `json:"phase"`
	Status string `json:"status"`
	Value  string `json:"value"`
	Tone   Tone   `json:"tone"`
	Ready  bool   `json:"ready"`
	Model  string `json:"model,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s State) View() View {
	v := View{
		Phase: s.Phase.String(),
		Value: "-",
		Tone:  TonePlain,
		Ready: s.ModelReady,
		Model: s.Model,
	}
	switch s.Phase {
	case Idle:
		v.Status = "Waiting"
	case Loading:
		v.Status = "Loading..."
	case Ready:
		v.Status = "Ready"
	case Predicting:
		v.Status = "Computing..."
	case Predicted:
		v.Status = "Prediction"
		v.Value = s.Class
		v.Tone = ToneSuccess
	case Failed:
		v.Error = s.Kind.String()
		if s.Kind == ModelLoadFailure {
			v.Status = "Model error"
			v.Value = "!"
			v.Tone = ToneDanger
		} else {
			v.Status = "Error"
		}
	}
	return v
}
