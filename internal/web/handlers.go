package web

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hpungsan/leadcap/internal/config"
	"github.com/hpungsan/leadcap/internal/contact"
	"github.com/hpungsan/leadcap/internal/engine"
	"github.com/hpungsan/leadcap/internal/errors"
	"github.com/hpungsan/leadcap/internal/logger"
	"github.com/hpungsan/leadcap/internal/ops"
)

const maxTurnBytes = 1 << 20

// Handlers contains HTTP route handlers for the JSON API.
type Handlers struct {
	db  *sql.DB
	cfg *config.Config
	eng *engine.Engine
	log *logger.Logger
}

// HandleTurn handles POST /turns: one capture turn.
func (h *Handlers) HandleTurn(w http.ResponseWriter, r *http.Request) {
	if h.eng == nil {
		h.renderError(w, errors.NewNotConfigured("engine"))
		return
	}

	var req engine.Request
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTurnBytes))
	if err := dec.Decode(&req); err != nil {
		h.renderError(w, errors.NewInvalidRequest("invalid turn body: "+err.Error()))
		return
	}

	resp, err := h.eng.Handle(r.Context(), &req)
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, resp)
}

// HandleTranscript handles GET /sessions/{id}/transcript.
func (h *Handlers) HandleTranscript(w http.ResponseWriter, r *http.Request) {
	if h.eng == nil {
		h.renderError(w, errors.NewNotConfigured("engine"))
		return
	}

	id := r.PathValue("id")
	msgs, err := h.eng.Transcript(r.Context(), id)
	if err != nil {
		h.renderError(w, err)
		return
	}
	if msgs == nil {
		msgs = []contact.Message{}
	}
	renderJSON(w, http.StatusOK, map[string]any{
		"session_id": id,
		"messages":   msgs,
	})
}

// HandleList handles GET /leads: list stored leads, newest first.
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	input := ops.ListInput{
		SessionID:      r.URL.Query().Get("session_id"),
		CompleteOnly:   parseBoolParam(r, "complete_only"),
		Limit:          parseIntParam(r, "limit", ops.DefaultListLimit),
		Offset:         parseIntParam(r, "offset", 0),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}

	result, err := ops.List(r.Context(), h.db, input)
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleFetch handles GET /leads/{id}: one stored lead.
func (h *Handlers) HandleFetch(w http.ResponseWriter, r *http.Request) {
	input := ops.FetchInput{
		RefID:          r.PathValue("id"),
		IncludeDeleted: parseBoolParam(r, "include_deleted"),
	}
	if s := r.URL.Query().Get("include_transcript"); s != "" {
		include := s == "true" || s == "1"
		input.IncludeTranscript = &include
	}

	lead, err := ops.Fetch(r.Context(), h.db, input)
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, lead)
}

// HandleDelete handles DELETE /leads/{id}: soft-delete a lead.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	result, err := ops.Delete(r.Context(), h.db, ops.DeleteInput{RefID: r.PathValue("id")})
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePurge handles POST /leads/purge: permanently delete soft-deleted leads.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		h.renderError(w, errors.NewInvalidRequest("invalid form data"))
		return
	}

	if r.FormValue("confirm") != "true" {
		h.renderError(w, errors.NewInvalidRequest("confirm parameter must be \"true\""))
		return
	}

	var input ops.PurgeInput
	for name, dst := range map[string]**int{
		"older_than_days":   &input.OlderThanDays,
		"idle_session_days": &input.IdleSessionDays,
	} {
		s := r.FormValue(name)
		if s == "" {
			continue
		}
		d, err := strconv.Atoi(s)
		if err != nil {
			h.renderError(w, errors.NewInvalidRequest(name+" must be an integer"))
			return
		}
		*dst = &d
	}

	result, err := ops.Purge(r.Context(), h.db, input)
	if err != nil {
		h.renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// renderError writes a coded error. Internal error details are logged, never
// returned.
func (h *Handlers) renderError(w http.ResponseWriter, err error) {
	lErr, ok := errors.As(err)
	if !ok {
		lErr = errors.NewInternal(err)
	}
	if lErr.Code == errors.ErrInternal {
		h.log.Error("request failed", "error", err)
	}

	renderJSON(w, lErr.Status, map[string]any{
		"error": map[string]any{
			"code":    string(lErr.Code),
			"message": lErr.Message,
			"status":  lErr.Status,
		},
	})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
