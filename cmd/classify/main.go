// Command classify runs the digit classifier over image files from disk.
package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/config"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
	"github.com/cheggaaa/pb/v3"
)

type outcome struct {
	path   string
	result app.Result
	err    error
}

func main() {
	var overrides config.Overrides
	flag.StringVar(&overrides.ModelDir, "models", "", "directory holding <name>.onnx files (overrides MODEL_DIR)")
	flag.StringVar(&overrides.ModelName, "model", "", "model to classify with (overrides MODEL_NAME)")
	flag.StringVar(&overrides.OnnxLibrary, "onnxruntime", "", "path to the onnxruntime shared library (overrides ONNXRUNTIME_LIB)")
	flag.StringVar(&overrides.Resampler, "resampler", "", "resampling filter: "+strings.Join(preprocess.Filters(), ", "))
	quiet := flag.Bool("q", false, "hide the progress bar")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <image or directory>...\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	paths, err := collectImages(flag.Args())
	if err != nil {
		log.Fatalf("Failed to list images: %v", err)
	}
	if len(paths) == 0 {
		log.Fatalf("No PNG or JPEG images found")
	}

	prep, err := preprocess.New(cfg.Resampler)
	if err != nil {
		log.Fatalf("Failed to configure preprocessing: %v", err)
	}

	logs := logger.NewWithWriters(os.Stderr, os.Stderr)
	runtime := model.NewRuntime(cfg.ModelDir, cfg.OnnxLibrary)
	defer runtime.Close()

	ctl := app.NewController(app.LoaderFunc(runtime.LoadClassifier), prep, app.MultiReporter{}, app.Options{Logger: logs})
	defer ctl.Close()

	ctx := context.Background()
	if err := ctl.LoadModel(ctx, cfg.ModelName); err != nil {
		logs.Error("%v", err)
		ctl.Close()
		runtime.Close()
		os.Exit(1)
	}

	outcomes := make([]outcome, 0, len(paths))
	var bar *pb.ProgressBar
	if !*quiet {
		bar = pb.StartNew(len(paths))
	}
	for _, path := range paths {
		result, err := classify(ctx, ctl, path)
		outcomes = append(outcomes, outcome{path: path, result: result, err: err})
		if bar != nil {
			bar.Increment()
		}
	}
	if bar != nil {
		bar.Finish()
	}

	failed := 0
	counts := make(map[string]int)
	for _, o := range outcomes {
		if o.err != nil {
			failed++
			logs.Warning("%s: %v", o.path, o.err)
			continue
		}
		counts[o.result.Class]++
		fmt.Printf("%s\t%s\t%.4f\t%.4f\n", o.path, o.result.Class, o.result.Score, o.result.Probability)
	}

	classes := make([]string, 0, len(counts))
	for c := range counts {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	for _, c := range classes {
		logs.Info("class %s: %d", c, counts[c])
	}
	logs.Info("classified %d of %d images with %s", len(outcomes)-failed, len(outcomes), ctl.Model())
}

func classify(ctx context.Context, ctl *app.Controller, path string) (app.Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return app.Result{}, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return app.Result{}, fmt.Errorf("decode: %w", err)
	}
	return ctl.PredictImage(ctx, img)
}

// collectImages expands directories one level deep and keeps PNG and JPEG
// files. Explicit file arguments are kept regardless of extension.
func collectImages(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if e.IsDir() || !isImage(e.Name()) {
				continue
			}
			paths = append(paths, filepath.Join(arg, e.Name()))
		}
	}
	return paths, nil
}

func isImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".png", ".jpg", ".jpeg":
		return true
	}
	return false
}
