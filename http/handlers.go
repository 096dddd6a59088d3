package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"mlserve/classifier"
	"mlserve/db"
)

const (
	msgMissingFeatures = "Missing features"
	msgNotTrained      = "Model has not been trained yet"
	msgInvalidJSON     = "Invalid JSON body"

	defaultHistoryLimit = 50
)

// HistoryReader lists training log entries, newest first.
type HistoryReader interface {
	LoadTrainingLog(ctx context.Context, modelName string, limit int) ([]db.TrainingLog, error)
}

// Handlers routes requests to the injected stores. Nil History or Events
// disables the corresponding endpoint.
type Handlers struct {
	Tree    *classifier.FlowerStore
	Forest  *classifier.FlowerStore
	Titanic *classifier.SurvivalStore
	History HistoryReader
	Events  http.HandlerFunc
	// SaveOnTrain writes the survival artifact after every /titanic/train.
	SaveOnTrain bool
	Logger      *zap.Logger
}

func (h *Handlers) logger() *zap.Logger {
	if h.Logger == nil {
		return zap.NewNop()
	}
	return h.Logger
}

// Register adds every endpoint to mux.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /trees/train", h.handleFlowerTrain(h.Tree))
	mux.HandleFunc("GET /random_forest/train", h.handleFlowerTrain(h.Forest))
	mux.HandleFunc("POST /trees/classify", h.handleFlowerClassify(h.Tree))
	mux.HandleFunc("POST /random_forest/classify", h.handleFlowerClassify(h.Forest))

	mux.HandleFunc("GET /titanic/train", h.handleTitanicTrain)
	mux.HandleFunc("GET /titanic/load", h.handleTitanicLoad)
	mux.HandleFunc("GET /titanic/save", h.handleTitanicSave)
	mux.HandleFunc("POST /titanic/predict", h.handleTitanicPredict)

	mux.HandleFunc("GET /models", h.handleModels)
	mux.HandleFunc("GET /history", h.handleHistory)
	mux.HandleFunc("GET /api/health", handleHealth)
	if h.Events != nil {
		mux.HandleFunc("GET /ws/events", h.Events)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

func (h *Handlers) handleFlowerTrain(store *classifier.FlowerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		accuracy, err := store.Train(r.Context())
		if err != nil {
			h.logger().Error("flower training failed", zap.String("model", store.Name()), zap.Error(err))
			respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		respondJSON(w, map[string]float64{"accuracy": accuracy})
	}
}

func (h *Handlers) handleFlowerClassify(store *classifier.FlowerStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		fields, err := decodeFields(r, flowerFields)
		if err != nil {
			respondRequestError(w, err)
			return
		}
		values := make([]float64, len(flowerFields))
		for i, name := range flowerFields {
			if values[i], err = parseNumber(name, fields[name]); err != nil {
				respondRequestError(w, err)
				return
			}
		}

		class, err := store.Predict(classifier.Flower{
			SepalLength: values[0],
			SepalWidth:  values[1],
			PetalLength: values[2],
			PetalWidth:  values[3],
		})
		if err != nil {
			h.respondStoreError(w, store.Name(), err)
			return
		}
		respondJSON(w, map[string]string{"class": class})
	}
}

func (h *Handlers) handleTitanicTrain(w http.ResponseWriter, r *http.Request) {
	accuracy, err := h.Titanic.Train(r.Context())
	if err != nil {
		h.logger().Error("titanic training failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	message := "Model trained"
	if h.SaveOnTrain {
		if err := h.Titanic.Save(); err != nil {
			h.logger().Error("saving titanic model failed", zap.Error(err))
			respondError(w, http.StatusInternalServerError, "Model trained but could not be saved: "+err.Error())
			return
		}
		message = "Model trained and saved"
	}
	respondJSON(w, map[string]interface{}{
		"message":  message,
		"accuracy": accuracy,
	})
}

func (h *Handlers) handleTitanicLoad(w http.ResponseWriter, r *http.Request) {
	err := h.Titanic.Load(r.Context())
	switch {
	case err == nil:
		respondJSON(w, map[string]string{"message": "Model loaded"})
	case errors.Is(err, classifier.ErrArtifactNotFound):
		respondError(w, http.StatusNotFound, "No saved model found")
	default:
		h.logger().Error("loading titanic model failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *Handlers) handleTitanicSave(w http.ResponseWriter, r *http.Request) {
	if err := h.Titanic.Save(); err != nil {
		h.respondStoreError(w, h.Titanic.Name(), err)
		return
	}
	respondJSON(w, map[string]string{"message": "Model saved"})
}

func (h *Handlers) handleTitanicPredict(w http.ResponseWriter, r *http.Request) {
	fields, err := decodeFields(r, passengerFields)
	if err != nil {
		respondRequestError(w, err)
		return
	}
	passenger, err := parsePassenger(fields)
	if err != nil {
		respondRequestError(w, err)
		return
	}
	result, err := h.Titanic.Predict(passenger)
	if err != nil {
		h.respondStoreError(w, h.Titanic.Name(), err)
		return
	}
	respondJSON(w, map[string]string{"result": result})
}

func (h *Handlers) handleModels(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string][]classifier.Snapshot{
		"models": {h.Tree.Status(), h.Forest.Status(), h.Titanic.Status()},
	})
}

func (h *Handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.History == nil {
		respondError(w, http.StatusNotFound, "training history is disabled")
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	entries, err := h.History.LoadTrainingLog(r.Context(), r.URL.Query().Get("model"), limit)
	if err != nil {
		h.logger().Error("reading training history failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []db.TrainingLog{}
	}
	respondJSON(w, map[string][]db.TrainingLog{"history": entries})
}

// respondStoreError maps store errors onto client and server errors.
func (h *Handlers) respondStoreError(w http.ResponseWriter, model string, err error) {
	if errors.Is(err, classifier.ErrModelNotTrained) {
		respondError(w, http.StatusBadRequest, msgNotTrained)
		return
	}
	h.logger().Error("store operation failed", zap.String("model", model), zap.Error(err))
	respondError(w, http.StatusInternalServerError, err.Error())
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondStatus(w, http.StatusOK, data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondStatus(w, status, map[string]string{"error": message})
}

func respondStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
