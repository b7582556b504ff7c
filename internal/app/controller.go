// Package app holds the recognizer's controller: a small state machine that
// owns one drawing surface and one model handle and turns user events into
// state reported to a UI.
package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strconv"
	"sync"
	"time"

	"github.com/Brownie44l1/digit-api/internal/canvas"
	"github.com/Brownie44l1/digit-api/internal/decision"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnknownEvent = errors.New("unknown event")
)

// Classifier is a loaded model handle.
type Classifier interface {
	Name() string
	Run(ctx context.Context, tensor []float32) ([]float32, error)
	Close() error
}

// Loader opens model variants by name. Load may block.
type Loader interface {
	Load(ctx context.Context, name string) (Classifier, error)
}

type LoaderFunc func(ctx context.Context, name string) (Classifier, error)

func (f LoaderFunc) Load(ctx context.Context, name string) (Classifier, error) {
	return f(ctx, name)
}

type classNamer interface {
	ClassName(idx int) string
}

type Options struct {
	CanvasSize int
	BrushWidth int
	Logger     *logger.Logger
}

// Result is the outcome of one prediction.
type Result struct {
	decision.Prediction
	Model       string               `json:"model"`
	Class       string               `json:"class"`
	Probability float64              `json:"probability"`
	Ranking     []decision.Candidate `json:"ranking"`
	Elapsed     time.Duration        `json:"elapsed"`
}

// Controller serializes state changes under mu. The model handle is written
// only by load completion and read by the predict operations.
type Controller struct {
	mu         sync.Mutex
	canvas     *canvas.Canvas
	prep       *preprocess.Preprocessor
	loader     Loader
	reporter   Reporter
	log        *logger.Logger
	classifier Classifier
	model      string
	generation uint64
	pending    bool
	closed     bool
	state      State
	loads      sync.WaitGroup
}

func NewController(loader Loader, prep *preprocess.Preprocessor, reporter Reporter, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.Discard()
	}
	return &Controller{
		canvas:   canvas.New(opts.CanvasSize, opts.CanvasSize, opts.BrushWidth),
		prep:     prep,
		loader:   loader,
		reporter: reporter,
		log:      opts.Logger,
		state:    State{Phase: Idle},
	}
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Ready reports whether a model handle is bound.
func (c *Controller) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier != nil
}

// Model returns the selected model name.
func (c *Controller) Model() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.model
}

// Snapshot returns a copy of the drawing surface.
func (c *Controller) Snapshot() *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.canvas.Content()
}

// SelectModel unbinds the current model and loads name in the background.
// A later selection supersedes this one.
func (c *Controller) SelectModel(name string) {
	gen, ok := c.beginLoad(name, true)
	if !ok {
		return
	}
	go func() {
		defer c.loads.Done()
		c.load(context.Background(), gen, name)
	}()
}

// LoadModel is SelectModel that waits for the load to finish.
func (c *Controller) LoadModel(ctx context.Context, name string) error {
	gen, ok := c.beginLoad(name, false)
	if !ok {
		return fmt.Errorf("%w: controller closed", ErrModelLoad)
	}
	return c.load(ctx, gen, name)
}

// Wait blocks until background loads have finished.
func (c *Controller) Wait() {
	c.loads.Wait()
}

// beginLoad registers background loads with the WaitGroup under mu so Close
// cannot miss one.
func (c *Controller) beginLoad(name string, background bool) (uint64, bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, false
	}
	if background {
		c.loads.Add(1)
	}
	c.generation++
	gen := c.generation
	old := c.classifier
	c.classifier = nil
	c.model = name
	c.pending = true
	c.setState(State{Phase: Loading})
	c.mu.Unlock()

	c.release(old)
	c.log.Info("Loading model %s", name)
	return gen, true
}

func (c *Controller) load(ctx context.Context, gen uint64, name string) error {
	start := time.Now()
	cl, err := c.loader.Load(ctx, name)

	c.mu.Lock()
	if gen != c.generation || c.closed {
		c.mu.Unlock()
		c.release(cl)
		c.log.Info("Discarded superseded load of %s", name)
		return fmt.Errorf("%w: load of %s was superseded", ErrModelLoad, name)
	}
	c.pending = false
	if err != nil {
		c.setState(State{Phase: Failed, Kind: ModelLoadFailure, Message: err.Error()})
		c.mu.Unlock()
		c.log.Error("Failed to load model %s: %v", name, err)
		return fmt.Errorf("%w: %s: %w", ErrModelLoad, name, err)
	}
	c.classifier = cl
	c.setState(State{Phase: Ready})
	c.mu.Unlock()

	c.log.Info("Model %s loaded in %v", name, time.Since(start))
	return nil
}

// Predict classifies the current drawing.
func (c *Controller) Predict(ctx context.Context) (Result, error) {
	c.mu.Lock()
	cl := c.classifier
	img := c.canvas.Content()
	c.mu.Unlock()

	if cl == nil {
		return Result{}, c.notReady()
	}
	tensor, err := c.prep.Tensor(img)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return c.infer(ctx, cl, tensor)
}

// PredictImage classifies an arbitrary image, e.g. an upload.
func (c *Controller) PredictImage(ctx context.Context, img image.Image) (Result, error) {
	cl := c.handle()
	if cl == nil {
		return Result{}, c.notReady()
	}
	tensor, err := c.prep.Tensor(img)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	return c.infer(ctx, cl, tensor)
}

// PredictTensor classifies an already preprocessed tensor.
func (c *Controller) PredictTensor(ctx context.Context, tensor []float32) (Result, error) {
	cl := c.handle()
	if cl == nil {
		return Result{}, c.notReady()
	}
	if len(tensor) != preprocess.TensorLen {
		return Result{}, fmt.Errorf("%w: expected %d values, got %d", ErrInvalidInput, preprocess.TensorLen, len(tensor))
	}
	return c.infer(ctx, cl, tensor)
}

// Clear wipes the drawing and the last result.
func (c *Controller) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvas.Clear()
	switch {
	case c.classifier != nil:
		c.setState(State{Phase: Ready})
	case c.pending:
		c.setState(State{Phase: Loading})
	default:
		c.setState(State{Phase: Idle})
	}
}

func (c *Controller) StartStroke(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvas.StartStroke(x, y)
}

func (c *Controller) MoveStroke(x, y float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvas.MoveTo(x, y)
}

func (c *Controller) EndStroke() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.canvas.EndStroke()
}

// Close unbinds and closes the model handle and waits for pending loads.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.generation++
	cl := c.classifier
	c.classifier = nil
	c.mu.Unlock()

	c.loads.Wait()
	if cl != nil {
		return cl.Close()
	}
	return nil
}

func (c *Controller) handle() Classifier {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.classifier
}

func (c *Controller) notReady() error {
	c.reporter.Notify(Notice{Kind: PredictBeforeReady, Message: "The model is not loaded yet."})
	return ErrPredictBeforeReady
}

func (c *Controller) infer(ctx context.Context, cl Classifier, tensor []float32) (Result, error) {
	c.mu.Lock()
	if c.classifier == cl {
		c.setState(State{Phase: Predicting})
	}
	c.mu.Unlock()

	start := time.Now()
	scores, err := cl.Run(ctx, tensor)
	if err == nil && len(scores) == 0 {
		err = errors.New("model returned an empty output")
	}
	elapsed := time.Since(start)

	c.mu.Lock()
	defer c.mu.Unlock()
	current := c.classifier == cl

	if err != nil {
		c.log.Error("Prediction error with %s: %v", cl.Name(), err)
		if current {
			c.setState(State{Phase: Failed, Kind: InferenceFailure, Message: err.Error()})
		}
		return Result{}, fmt.Errorf("%w: %w", ErrInference, err)
	}

	pred := decision.Decide(scores)
	result := Result{
		Prediction: pred,
		Model:      cl.Name(),
		Class:      className(cl, pred.Label),
		Ranking:    decision.Rank(scores),
		Elapsed:    elapsed,
	}
	if pred.Label >= 0 {
		result.Probability = decision.Probabilities(scores)[pred.Label]
	}

	if current {
		c.setState(State{
			Phase:       Predicted,
			Label:       result.Label,
			Class:       result.Class,
			Score:       result.Score,
			Probability: result.Probability,
		})
	} else {
		c.log.Info("Prediction from replaced model %s finished: %s", cl.Name(), result.Class)
	}
	return result, nil
}

// setState must be called with mu held.
func (c *Controller) setState(s State) {
	s.Model = c.model
	s.ModelReady = c.classifier != nil
	c.state = s
	c.reporter.Report(s)
}

func (c *Controller) release(cl Classifier) {
	if cl == nil {
		return
	}
	if err := cl.Close(); err != nil {
		c.log.Warning("Failed to close model %s: %v", cl.Name(), err)
	}
}

func className(cl Classifier, label int) string {
	if n, ok := cl.(classNamer); ok {
		return n.ClassName(label)
	}
	return strconv.Itoa(label)
}
