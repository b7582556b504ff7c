package preprocess

import (
	"fmt"
	"image"
	"sort"
	"sync"

	"github.com/nfnt/resize"
)

const DefaultFilter = "bilinear"

// ResampleFunc scales src to a size×size image.
type ResampleFunc func(src image.Image, size int) (image.Image, error)

var (
	filtersMu sync.RWMutex
	filters   = map[string]ResampleFunc{}
)

func init() {
	Register("nearest", nfntResampler(resize.NearestNeighbor))
	Register("bilinear", nfntResampler(resize.Bilinear))
	Register("bicubic", nfntResampler(resize.Bicubic))
	Register("lanczos3", nfntResampler(resize.Lanczos3))
}

// Register makes a resampling filter available by name.
func Register(name string, fn ResampleFunc) {
	filtersMu.Lock()
	defer filtersMu.Unlock()
	filters[name] = fn
}

// Lookup returns the filter registered under name.
func Lookup(name string) (ResampleFunc, error) {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	fn, ok := filters[name]
	if !ok {
		return nil, fmt.Errorf("unknown resampling filter %q (available: %v)", name, filterNames())
	}
	return fn, nil
}

// Filters lists the registered filter names.
func Filters() []string {
	filtersMu.RLock()
	defer filtersMu.RUnlock()
	return filterNames()
}

func filterNames() []string {
	names := make([]string, 0, len(filters))
	for name := range filters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func nfntResampler(interp resize.InterpolationFunction) ResampleFunc {
	return func(src image.Image, size int) (image.Image, error) {
		return resize.Resize(uint(size), uint(size), src, interp), nil
	}
}
