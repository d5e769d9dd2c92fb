package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/christopherklint97/daylog/internal/pm"
	"github.com/christopherklint97/daylog/internal/service"
)

const maxBodyBytes = 4 << 20

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.backend.Status())
}

// GET /api/activities?date=YYYY-MM-DD&tz=Europe/Oslo
func (s *Server) handleActivities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	date := q.Get("date")
	if date == "" {
		respondJSONError(w, http.StatusBadRequest, "validation_error", "Date parameter required (YYYY-MM-DD)")
		return
	}
	tz := q.Get("tz")
	if tz == "" {
		tz = "UTC"
	}

	day, err := s.backend.FetchDay(r.Context(), date, tz)
	if err != nil {
		respondErr(w, r, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, day)
}

// GET /api/pm-context?date=YYYY-MM-DD
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date == "" {
		respondJSONError(w, http.StatusBadRequest, "validation_error", "Date parameter required (YYYY-MM-DD)")
		return
	}

	pmCtx, err := s.backend.Context(r.Context(), date)
	if err != nil {
		respondErr(w, r, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, pmCtx)
}

// POST /api/suggest {date, timezone, hours, pmContext}
func (s *Server) handleSuggest(w http.ResponseWriter, r *http.Request) {
	var req service.SuggestRequest
	if !s.decode(w, r, &req) {
		return
	}

	resp, err := s.backend.Suggest(r.Context(), req)
	if err != nil {
		respondErr(w, r, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

type submitRequest struct {
	Entries []pm.Entry `json:"entries"`
}

type submitResponse struct {
	Results []pm.SubmitResult `json:"results"`
}

// POST /api/submit {entries: [...]}
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}

	results, err := s.backend.Submit(r.Context(), req.Entries)
	if err != nil {
		respondErr(w, r, s.logger, err)
		return
	}
	respondJSON(w, http.StatusOK, submitResponse{Results: results})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		switch {
		case errors.As(err, &tooLarge):
			respondJSONError(w, http.StatusRequestEntityTooLarge, "validation_error", "Request body too large")
		case errors.Is(err, io.EOF):
			respondJSONError(w, http.StatusBadRequest, "validation_error", "Request body required")
		default:
			respondJSONError(w, http.StatusBadRequest, "validation_error", "Invalid JSON: "+err.Error())
		}
		return false
	}
	return true
}
