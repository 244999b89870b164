package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/ironsheep/stamp-detector/internal/detector"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// MaxUploadBytes caps the document accepted by POST /v1/detect.
const MaxUploadBytes = 10 << 20

var (
	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "stamp_http_duration_seconds",
		Help: "Duration of HTTP requests.",
	}, []string{"path"})
	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stamp_http_requests_total",
		Help: "Number of HTTP requests.",
	}, []string{"path"})
)

// PrometheusMiddleware records request count and duration per route
// template, so path parameters do not explode label cardinality.
func PrometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		duration := time.Since(start)
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tpl, err := route.GetPathTemplate(); err == nil {
				path = tpl
			}
		}
		httpDuration.WithLabelValues(path).Observe(duration.Seconds())
		httpRequests.WithLabelValues(path).Inc()
	})
}

type httpAPI struct {
	det *detector.Detector
	log logrus.FieldLogger
}

// errorBody is the JSON shape of non-detection failures.
type errorBody struct {
	Error string `json:"error"`
}

// NewHTTPHandler returns the upload API:
//
//	POST /v1/detect          multipart field "file", returns DetectionResult
//	GET  /v1/stamps          loaded reference stamps
//	POST /v1/stamps/reload   rebuild the library from STAMP_DIR
//	GET  /health             liveness
//	GET  /metrics            Prometheus exposition
func NewHTTPHandler(det *detector.Detector) http.Handler {
	api := &httpAPI{det: det, log: logrus.WithField("component", "http")}

	router := mux.NewRouter()
	router.HandleFunc("/v1/detect", api.detect).Methods(http.MethodPost)
	router.HandleFunc("/v1/stamps", api.stamps).Methods(http.MethodGet)
	router.HandleFunc("/v1/stamps/reload", api.reload).Methods(http.MethodPost)
	router.HandleFunc("/health", api.health).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(PrometheusMiddleware)

	return handlers.CORS(
		handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type"}),
		handlers.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		handlers.AllowedOrigins([]string{"*"}),
		handlers.ExposedHeaders([]string{"X-Run-ID"}),
	)(router)
}

// ListenAndServe serves h on addr until ctx ends, then drains in-flight
// requests for up to shutdownTimeout.
func ListenAndServe(ctx context.Context, addr string, h http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("addr", addr).Info("HTTP server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func (a *httpAPI) detect(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{Error: "file exceeds 10MB limit"})
			return
		}
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "expected multipart form: " + err.Error()})
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "missing form field \"file\""})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "failed to read upload: " + err.Error()})
		return
	}

	res := a.det.DetectOnBuffer(r.Context(), data, header.Header.Get("Content-Type"))
	w.Header().Set("X-Run-ID", res.RunID)

	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (a *httpAPI) stamps(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, listStamps(r.Context(), a.det))
}

func (a *httpAPI) reload(w http.ResponseWriter, r *http.Request) {
	if _, err := a.det.ReloadStamps(r.Context(), ""); err != nil {
		a.log.WithError(err).Error("Stamp reload failed")
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, listStamps(r.Context(), a.det))
}

func (a *httpAPI) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"stamps": a.det.Store().Len(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// listStamps summarizes the active store, loading it on first use.
func listStamps(ctx context.Context, det *detector.Detector) *StampListResult {
	store := det.Stamps(ctx)
	out := &StampListResult{
		Directory: store.Dir(),
		Count:     store.Len(),
		Stamps:    make([]StampInfo, 0, store.Len()),
	}
	if !store.LoadedAt().IsZero() {
		out.LoadedAt = store.LoadedAt().UTC().Format(time.RFC3339)
	}
	for _, ref := range store.References() {
		b := ref.Base.Bounds()
		out.Stamps = append(out.Stamps, StampInfo{
			Name:     ref.Name,
			Path:     ref.Path,
			Width:    b.Dx(),
			Height:   b.Dy(),
			Variants: ref.VariantKinds(),
		})
	}
	return out
}
