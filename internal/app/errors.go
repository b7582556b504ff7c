package app

import "errors"

var (
	ErrModelLoad          = errors.New("model load failed")
	ErrPredictBeforeReady = errors.New("model is not loaded yet")
	ErrInference          = errors.New("inference failed")
)
