package ingest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	config "github.com/NordCoder/Heartline/internal/config/ingest"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type pingOK struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	CheckID           int64  `json:"check_id"`
	RunID             int64  `json:"run_id,omitempty"`
	NotificationsSent bool   `json:"notifications_sent"`
}

type pingError struct {
	Status            string `json:"status"`
	Message           string `json:"message"`
	RetryAfterSeconds int64  `json:"retry_after_seconds,omitempty"`
}

// NewHTTPServer builds the public ingestion listener. The ping route is
// the only business route; health and metrics live on a separate
// listener so the public surface stays minimal.
func NewHTTPServer(cfg config.Server, h *Handler, log *zap.Logger) *http.Server {
	s := &httpServer{h: h, log: log}

	mux := http.NewServeMux()
	mux.HandleFunc("/ping-handler", s.handlePing)

	return &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      otelhttp.NewHandler(cors(mux), "ingest"),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

type httpServer struct {
	h   *Handler
	log *zap.Logger
}

// The ping URL is embedded in third-party automations, so every origin
// is allowed and preflight always succeeds.
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *httpServer) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, pingError{Status: "error", Message: "method not allowed"})
		return
	}

	tok := r.URL.Query().Get("uuid")
	if tok == "" {
		writeJSON(w, http.StatusBadRequest, pingError{Status: "error", Message: "missing uuid parameter"})
		return
	}

	var body []byte
	if r.Method == http.MethodPost && r.Body != nil {
		var err error
		body, err = io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				writeJSON(w, http.StatusRequestEntityTooLarge, pingError{Status: "error", Message: ErrBodyTooLarge.Error()})
				return
			}
			writeJSON(w, http.StatusBadRequest, pingError{Status: "error", Message: "unreadable request body"})
			return
		}
	}

	res, err := s.h.HandlePing(r.Context(), tok, body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	status, msg := "ok", "ping recorded"
	if res.Partial {
		status, msg = "partial_success", "ping recorded, run history entry was not persisted"
	}
	writeJSON(w, http.StatusOK, pingOK{
		Status:            status,
		Message:           msg,
		CheckID:           res.CheckID,
		RunID:             res.RunID,
		NotificationsSent: res.NotificationsSent,
	})
}

func (s *httpServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var rle *RateLimitError
	switch {
	case errors.As(err, &rle):
		w.Header().Set("Retry-After", strconv.FormatInt(rle.RetryAfterSeconds, 10))
		writeJSON(w, http.StatusTooManyRequests, pingError{
			Status:            "error",
			Message:           rle.Error(),
			RetryAfterSeconds: rle.RetryAfterSeconds,
		})
	case errors.Is(err, ErrCheckNotFound):
		writeJSON(w, http.StatusNotFound, pingError{Status: "error", Message: "no check matches this uuid"})
	case errors.Is(err, ErrBodyTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, pingError{Status: "error", Message: err.Error()})
	case errors.Is(err, ErrValidation):
		writeJSON(w, http.StatusBadRequest, pingError{Status: "error", Message: err.Error()})
	default:
		s.log.Error("ping handler", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, pingError{Status: "error", Message: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
