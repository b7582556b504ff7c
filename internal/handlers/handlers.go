package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"

	"github.com/Brownie44l1/digit-api/internal/app"
	"github.com/Brownie44l1/digit-api/internal/logger"
	"github.com/Brownie44l1/digit-api/internal/model"
	"github.com/Brownie44l1/digit-api/internal/preprocess"
)

// ModelLister lists selectable model variants.
type ModelLister interface {
	Available() ([]string, error)
}

// Handler serves the stateless HTTP API against one shared controller.
type Handler struct {
	controller *app.Controller
	models     ModelLister
	maxUpload  int64
	logger     *logger.Logger
}

func NewHandler(controller *app.Controller, models ModelLister, maxUpload int64, logger *logger.Logger) *Handler {
	return &Handler{
		controller: controller,
		models:     models,
		maxUpload:  maxUpload,
		logger:     logger,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	state := h.controller.State()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"model":  state.Model,
		"ready":  state.ModelReady,
		"phase":  state.Phase.String(),
	})
}

// Models lists variants on GET and selects the shared model on POST.
func (h *Handler) Models(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		names, err := h.models.Available()
		if err != nil {
			h.logger.Error("Listing models: %v", err)
			http.Error(w, "Failed to list models", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"models":   names,
			"selected": h.controller.Model(),
		})

	case http.MethodPost:
		var req struct {
			Name string `json:"name"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, 1<<10)).Decode(&req); err != nil || req.Name == "" {
			http.Error(w, "Expected JSON body with a model name", http.StatusBadRequest)
			return
		}
		h.controller.SelectModel(req.Name)
		writeJSON(w, http.StatusAccepted, map[string]string{"selected": req.Name, "phase": app.Loading.String()})

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) Predict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, h.maxUpload))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	var req model.PredictionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if len(req.Image) != preprocess.TensorLen {
		http.Error(w, fmt.Sprintf("Expected %d values, got %d", preprocess.TensorLen, len(req.Image)),
			http.StatusBadRequest)
		return
	}

	result, err := h.controller.PredictTensor(r.Context(), req.Image)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response(result))
}

func (h *Handler) PredictFromImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload)
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		http.Error(w, "Failed to parse form", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		http.Error(w, "No image file provided. Use 'image' as the form field name", http.StatusBadRequest)
		return
	}
	defer file.Close()

	h.logger.Info("Received file: %s, size: %d bytes", header.Filename, header.Size)

	img, format, err := image.Decode(file)
	if err != nil {
		http.Error(w, "Invalid image format. Supported: JPEG, PNG", http.StatusBadRequest)
		return
	}

	h.logger.Info("Image format: %s, dimensions: %dx%d", format, img.Bounds().Dx(), img.Bounds().Dy())

	result, err := h.controller.PredictImage(r.Context(), img)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, response(result))
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrPredictBeforeReady):
		http.Error(w, "Model is not loaded yet", http.StatusServiceUnavailable)
	case errors.Is(err, app.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.Error("Prediction error: %v", err)
		http.Error(w, "Prediction failed", http.StatusInternalServerError)
	}
}

func response(result app.Result) *model.PredictionResponse {
	predictions := make(map[string]float32, len(result.Ranking))
	for _, c := range result.Ranking {
		predictions[fmt.Sprint(c.Label)] = c.Score
	}
	return &model.PredictionResponse{
		Model:       result.Model,
		Class:       result.Class,
		Label:       result.Label,
		Score:       result.Score,
		Confidence:  result.Probability,
		Predictions: predictions,
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
