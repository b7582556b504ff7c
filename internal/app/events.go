package app

import (
	"context"
	"fmt"
)

type EventType string

const (
	EventDrawStart   EventType = "draw_start"
	EventDrawMove    EventType = "draw_move"
	EventDrawEnd     EventType = "draw_end"
	EventClear       EventType = "clear"
	EventSelectModel EventType = "select_model"
	EventPredict     EventType = "predict"
)

// Event is one user action. X and Y are surface coordinates for draw events;
// Model names the variant for select_model.
type Event struct {
	Type  EventType `json:"type"`
	X     float64   `json:"x,omitempty"`
	Y     float64   `json:"y,omitempty"`
	Model string    `json:"model,omitempty"`
}

// Dispatch applies ev. Predict runs to completion before Dispatch returns,
// so a caller that dispatches sequentially never overlaps inferences.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventDrawStart:
		c.StartStroke(ev.X, ev.Y)
	case EventDrawMove:
		c.MoveStroke(ev.X, ev.Y)
	case EventDrawEnd:
		c.EndStroke()
	case EventClear:
		c.Clear()
	case EventSelectModel:
		if ev.Model == "" {
			return fmt.Errorf("%w: select_model without a model name", ErrInvalidInput)
		}
		c.SelectModel(ev.Model)
	case EventPredict:
		_, err := c.Predict(ctx)
		return err
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}
	return nil
}
