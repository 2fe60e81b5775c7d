package pensee

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// RegisterHTTP mounts the project-scoped REST mirror of the MCP tools.
func (svc *Service) RegisterHTTP(r chi.Router) {
	r.Route("/api/projects/{projectID}", func(r chi.Router) {
		r.Get("/thoughts", svc.handleListThoughts)
		r.Post("/thoughts", svc.handleAddThought)
		r.Delete("/thoughts", svc.handleClearThoughts)
		r.Get("/thoughts/{number}/related", svc.handleRelated)
		r.Get("/summary", svc.handleSummary)
		r.Post("/export", svc.handleExport)
		r.Post("/import", svc.handleImport)
	})
	if svc.audit != nil {
		r.Get("/api/audit", svc.handleAudit)
	}
}

// errorStatus maps sentinel errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, errorStatus(err), map[string]string{"error": err.Error()})
}

func (svc *Service) handleListThoughts(w http.ResponseWriter, r *http.Request) {
	hist, err := svc.History(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, hist)
}

func (svc *Service) handleAddThought(w http.ResponseWriter, r *http.Request) {
	var req ThoughtRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	// The URL owns the project scope.
	req.ProjectID = chi.URLParam(r, "projectID")

	res, err := svc.ProcessThought(r.Context(), &req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (svc *Service) handleClearThoughts(w http.ResponseWriter, r *http.Request) {
	if err := svc.ClearHistory(r.Context(), chi.URLParam(r, "projectID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success"})
}

func (svc *Service) handleRelated(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil {
		http.Error(w, "Invalid thought number", http.StatusBadRequest)
		return
	}
	related, err := svc.RelatedThoughts(r.Context(), chi.URLParam(r, "projectID"), number)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, related)
}

func (svc *Service) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := svc.GenerateSummary(r.Context(), chi.URLParam(r, "projectID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

type fileBody struct {
	FilePath string `json:"file_path"`
}

func (svc *Service) handleExport(w http.ResponseWriter, r *http.Request) {
	var body fileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := svc.ExportSession(r.Context(), chi.URLParam(r, "projectID"), body.FilePath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "file_path": body.FilePath})
}

func (svc *Service) handleImport(w http.ResponseWriter, r *http.Request) {
	var body fileBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := svc.ImportSession(r.Context(), chi.URLParam(r, "projectID"), body.FilePath); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "success", "file_path": body.FilePath})
}

func (svc *Service) handleAudit(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := svc.audit.Recent(r.Context(), limit)
	if err != nil {
		svc.logger.Error("audit query failed", "error", err)
		http.Error(w, "Internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
