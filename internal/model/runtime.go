package model

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	ort "github.com/yalue/onnxruntime_go"
)

const modelExt = ".onnx"

var _ app.Classifier = (*Session)(nil)

// Runtime owns the process-wide ONNX environment and the directory model
// variants are loaded from.
type Runtime struct {
	dir         string
	libPath     string
	mu          sync.Mutex
	initialized bool
}

// NewRuntime does not touch the ONNX library; the environment is
// initialized by the first successful artifact lookup in Load.
func NewRuntime(modelDir, libPath string) *Runtime {
	return &Runtime{dir: modelDir, libPath: libPath}
}

func (r *Runtime) Dir() string {
	return r.dir
}

// Path resolves a variant name to its artifact path.
func (r *Runtime) Path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	return filepath.Join(r.dir, name+modelExt), nil
}

// Available lists the model variants in the directory.
func (r *Runtime) Available() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read model directory: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != modelExt {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), modelExt))
	}
	sort.Strings(names)
	return names, nil
}

// Load opens the named variant. The input and output are bound by the
// names the model declares, taking the first of each.
func (r *Runtime) Load(ctx context.Context, name string) (*Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	modelPath, err := r.Path(name)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(modelPath); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("model file not found: %s", modelPath)
		}
		return nil, fmt.Errorf("failed to stat model: %w", err)
	}

	metadata, err := readMetadata(strings.TrimSuffix(modelPath, modelExt) + ".json")
	if err != nil {
		return nil, err
	}

	if err := r.ensureEnvironment(); err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model inputs and outputs: %w", err)
	}

	info, err := bindInfo(name, inputs, outputs)
	if err != nil {
		return nil, err
	}
	info.Classes = metadata.Classes
	if len(info.Classes) == 0 {
		info.Classes = defaultClasses(int(ort.Shape(info.OutputShape).FlattenedSize()))
	}

	return newSession(modelPath, info)
}

// LoadClassifier is Load with the controller's Loader signature.
func (r *Runtime) LoadClassifier(ctx context.Context, name string) (app.Classifier, error) {
	s, err := r.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Close tears down the ONNX environment. Sessions must be closed first.
func (r *Runtime) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return nil
	}
	r.initialized = false
	return ort.DestroyEnvironment()
}

func (r *Runtime) ensureEnvironment() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	if r.libPath != "" {
		ort.SetSharedLibraryPath(r.libPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}
	r.initialized = true
	return nil
}

func bindInfo(name string, inputs, outputs []ort.InputOutputInfo) (Info, error) {
	if len(inputs) == 0 {
		return Info{}, errors.New("model declares no inputs")
	}
	if len(outputs) == 0 {
		return Info{}, errors.New("model declares no outputs")
	}
	in, out := inputs[0], outputs[0]

	// GetInputOutputInfo already rejects non-tensor values.
	for _, v := range []ort.InputOutputInfo{in, out} {
		if v.DataType != ort.TensorElementDataTypeFloat {
			return Info{}, fmt.Errorf("%s is not float32", v.Name)
		}
	}

	inputShape := resolveShape(in.Dimensions)
	if n := ort.Shape(inputShape).FlattenedSize(); n != preprocess.TensorLen {
		return Info{}, fmt.Errorf("model input %s has %d elements %v, expected %d", in.Name, n, inputShape, preprocess.TensorLen)
	}

	return Info{
		Name:        name,
		InputName:   in.Name,
		OutputName:  out.Name,
		InputShape:  inputShape,
		OutputShape: resolveShape(out.Dimensions),
	}, nil
}

// resolveShape pins dynamic dimensions to 1 (one drawing per request).
func resolveShape(dims ort.Shape) []int64 {
	shape := make([]int64, len(dims))
	for i, d := range dims {
		if d <= 0 {
			d = 1
		}
		shape[i] = d
	}
	return shape
}

func readMetadata(path string) (Metadata, error) {
	var metadata Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return metadata, nil
		}
		return metadata, fmt.Errorf("failed to read metadata: %w", err)
	}
	if err := json.Unmarshal(data, &metadata); err != nil {
		return metadata, fmt.Errorf("failed to parse metadata: %w", err)
	}
	return metadata, nil
}
