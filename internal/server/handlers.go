package server

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/triageflow/triageflow/internal/audit"
	"github.com/triageflow/triageflow/internal/domain"
	"github.com/triageflow/triageflow/internal/pipeline"
)

// maxInputBytes caps submissions; anything larger is rejected before the
// pipeline sees it.
const maxInputBytes = 10 << 20

type handlers struct {
	pipeline *pipeline.Pipeline
	store    audit.Store
	logger   *slog.Logger
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Kind          string `json:"kind"`
	Message       string `json:"message"`
	Stage         string `json:"stage,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

func (h *handlers) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// submit ingests one input. The body is a multipart form with a "file"
// part, a urlencoded form or JSON envelope carrying a "text" field, or the
// raw input bytes; the format hint comes from the form, the envelope, or
// the ?format= query parameter.
func (h *handlers) submit(w http.ResponseWriter, r *http.Request) {
	input, declared, err := readSubmission(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: err.Error()})
		return
	}
	if len(input) == 0 {
		writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "empty input"})
		return
	}

	res, err := h.pipeline.Process(r.Context(), input, declared)
	if err != nil {
		AddError(r.Context(), err)
		perr, ok := domain.AsPipelineError(err)
		if !ok {
			writeError(w, http.StatusInternalServerError, errorBody{Kind: "internal", Message: "processing failed"})
			return
		}
		writeError(w, statusForKind(perr.Kind), errorBody{
			Kind:          string(perr.Kind),
			Message:       perr.Message,
			Stage:         string(perr.Stage),
			TransactionID: perr.TransactionID,
		})
		return
	}

	AddLogField(r.Context(), "transaction_id", res.TransactionID)
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) trail(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	records, err := h.store.Trail(r.Context(), id)
	if err != nil {
		if errors.Is(err, audit.ErrNotFound) {
			writeError(w, http.StatusNotFound, errorBody{Kind: "not_found", Message: "no audit trail for transaction " + id})
			return
		}
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, errorBody{Kind: "audit_store", Message: "reading audit trail"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"transaction_id": id,
		"records":        records,
	})
}

func (h *handlers) listRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, errorBody{Kind: "bad_request", Message: "limit must be a positive integer"})
			return
		}
		limit = n
	}

	summaries, err := h.store.ListRecent(r.Context(), limit)
	if err != nil {
		AddError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, errorBody{Kind: "audit_store", Message: "listing transactions"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": summaries})
}

func readSubmission(r *http.Request) ([]byte, domain.Format, error) {
	declared := domain.Format(r.URL.Query().Get("format"))

	ct := r.Header.Get("Content-Type")
	switch {
	case strings.HasPrefix(ct, "multipart/form-data"):
		if err := r.ParseMultipartForm(maxInputBytes); err != nil {
			return nil, "", err
		}
		if f := r.FormValue("format"); f != "" {
			declared = domain.Format(f)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, "", errors.New("multipart submission requires a file part")
		}
		defer file.Close()
		input, err := io.ReadAll(io.LimitReader(file, maxInputBytes))
		return input, declared, err

	case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
		if err := r.ParseForm(); err != nil {
			return nil, "", err
		}
		if f := r.PostFormValue("format"); f != "" {
			declared = domain.Format(f)
		}
		text := r.PostFormValue("text")
		if text == "" {
			return nil, "", errors.New("form submission requires a text field")
		}
		return []byte(text), declared, nil
	}

	input, err := io.ReadAll(io.LimitReader(r.Body, maxInputBytes))
	if err != nil {
		return nil, "", err
	}

	// A JSON body may be an envelope {"text": ..., "format": ...} around a
	// plain-text document rather than the document itself. Only an object
	// with a non-empty text key is unwrapped; anything else is the input.
	if strings.HasPrefix(ct, "application/json") {
		var env struct {
			Text   string `json:"text"`
			Format string `json:"format"`
		}
		if err := json.Unmarshal(input, &env); err == nil && env.Text != "" {
			if env.Format != "" {
				declared = domain.Format(env.Format)
			}
			return []byte(env.Text), declared, nil
		}
	}

	return input, declared, nil
}

func statusForKind(kind domain.ErrorKind) int {
	switch kind {
	case domain.ErrorKindClassification:
		return http.StatusBadGateway
	case domain.ErrorKindExtraction:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, errorResponse{Error: body})
}
