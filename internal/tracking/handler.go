package tracking

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

// Handler exposes a Store as a JSON API:
//
//	GET  /                          greeting
//	GET  /tracking/{year}/{month}   tracks created in that month
//	POST /tracking/                 create a track
type Handler struct {
	store  *Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// NewHandler builds the routes.
func NewHandler(store *Store, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{store: store, logger: logger, mux: http.NewServeMux()}
	h.mux.HandleFunc("GET /{$}", h.handleRoot)
	h.mux.HandleFunc("GET /tracking/{year}/{month}", h.handleList)
	h.mux.HandleFunc("POST /tracking/{$}", h.handleCreate)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	h.mux.ServeHTTP(rw, r)
	h.logger.Info("request", "method", r.Method, "path", r.URL.Path, "status", rw.status, "duration", time.Since(start))
}

func (h *Handler) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"Hello": "Grabbing DB data!"})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.PathValue("year"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "year must be an integer")
		return
	}
	month, err := strconv.Atoi(r.PathValue("month"))
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "month must be an integer")
		return
	}

	tracks, err := h.store.ListMonth(r.Context(), year, month)
	if err != nil {
		h.logger.Error("list tracks", "year", year, "month", month, "error", err)
		writeDetail(w, http.StatusInternalServerError, "Database error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tracks)
}

// trackInput uses pointers so missing fields can be told apart from zeros.
type trackInput struct {
	ID        *string  `json:"id"`
	Telem1    *float64 `json:"telem_1"`
	Telem2    *float64 `json:"telem_2"`
	Longitude *float64 `json:"longitude"`
	Latitude  *float64 `json:"latitude"`
	CreatedOn *string  `json:"created_on"`
}

func (in trackInput) track() (Track, error) {
	var missing []string
	if in.ID == nil {
		missing = append(missing, "id")
	}
	if in.Telem1 == nil {
		missing = append(missing, "telem_1")
	}
	if in.Telem2 == nil {
		missing = append(missing, "telem_2")
	}
	if in.Longitude == nil {
		missing = append(missing, "longitude")
	}
	if in.Latitude == nil {
		missing = append(missing, "latitude")
	}
	if in.CreatedOn == nil {
		missing = append(missing, "created_on")
	}
	if len(missing) > 0 {
		return Track{}, fmt.Errorf("missing fields: %v", missing)
	}
	return Track{
		ID:        *in.ID,
		Telem1:    *in.Telem1,
		Telem2:    *in.Telem2,
		Longitude: *in.Longitude,
		Latitude:  *in.Latitude,
		CreatedOn: *in.CreatedOn,
	}, nil
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in trackInput
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(&in); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid body: "+err.Error())
		return
	}
	t, err := in.track()
	if err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	if err := h.store.Create(r.Context(), t); err != nil {
		h.logger.Warn("create track", "id", t.ID, "error", err)
		writeDetail(w, http.StatusBadRequest, "Database error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"created": "success", "id": t.ID})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
