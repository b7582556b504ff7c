package app

import (
	"github.com/Brownie44l1/digit-api/internal/logger"
)

// Reporter renders controller state. Implementations must be safe for use
// from the load goroutine as well as the caller's.
type Reporter interface {
	Report(State)
	Notify(Notice)
}

// LogReporter writes state transitions to a logger.
type LogReporter struct {
	Logger *logger.Logger
	Prefix string
}

func (r LogReporter) Report(s State) {
	v := s.View()
	switch s.Phase {
	case Failed:
		r.Logger.Warning("%sstate=%s status=%q model=%s error=%s: %s", r.Prefix, v.Phase, v.Status, s.Model, v.Error, s.Message)
	case Predicted:
		r.Logger.Info("%sstate=%s model=%s label=%d class=%s score=%.4f", r.Prefix, v.Phase, s.Model, s.Label, s.Class, s.Score)
	default:
		r.Logger.Info("%sstate=%s status=%q model=%s ready=%t", r.Prefix, v.Phase, v.Status, s.Model, s.ModelReady)
	}
}

func (r LogReporter) Notify(n Notice) {
	r.Logger.Warning("%snotice=%s: %s", r.Prefix, n.Kind, n.Message)
}

// MultiReporter fans out to every reporter in order.
type MultiReporter []Reporter

func (m MultiReporter) Report(s State) {
	for _, r := range m {
		r.Report(s)
	}
}

func (m MultiReporter) Notify(n Notice) {
	for _, r := range m {
		r.Notify(n)
	}
}
