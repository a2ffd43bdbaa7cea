package inventory

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

type reportHostRequest struct {
	DisplayName *string `json:"display_name"`
	AnsibleHost *string `json:"ansible_host"`

	CanonicalFacts

	Facts            map[string]map[string]any `json:"facts"`
	Tags             []Tag                     `json:"tags"`
	PlatformMetadata map[string]any            `json:"platform_metadata"`
}

func (a *API) handleReportHost(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.Header.Get(headerAccount))
	if account == "" {
		respondError(w, http.StatusBadRequest, errors.New("account header is required"))
		return
	}

	var req reportHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	host, created, err := a.svc.ReportHost(r.Context(), ReportHostInput{
		Account:          account,
		CanonicalFacts:   req.CanonicalFacts,
		DisplayName:      req.DisplayName,
		AnsibleHost:      req.AnsibleHost,
		Facts:            req.Facts,
		Tags:             req.Tags,
		Reporter:         strings.TrimSpace(r.Header.Get(headerReporter)),
		RequestID:        middleware.GetReqID(r.Context()),
		PlatformMetadata: req.PlatformMetadata,
	})
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, map[string]any{"host": host})
}

func (a *API) handleGetHost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid host id is required"))
		return
	}

	host, err := a.svc.GetHost(r.Context(), id)
	if err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"host": host})
}

func (a *API) handleListHosts(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.Header.Get(headerAccount))
	if account == "" {
		respondError(w, http.StatusBadRequest, errors.New("account header is required"))
		return
	}

	page := queryInt(r, "page", 1)
	perPage := queryInt(r, "per_page", defaultPerPage)
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	hosts, err := a.svc.ListHosts(r.Context(), account, perPage, (page-1)*perPage)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"count":    len(hosts),
		"page":     page,
		"per_page": perPage,
		"results":  hosts,
	})
}

type patchHostRequest struct {
	DisplayName *string `json:"display_name"`
	AnsibleHost *string `json:"ansible_host"`
}

// handlePatchHosts patches a comma-separated batch of host ids. Each id is
// reported individually; one missing host does not fail the rest.
func (a *API) handlePatchHosts(w http.ResponseWriter, r *http.Request) {
	ids, err := parseIDList(chi.URLParam(r, "ids"))
	if err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	var req patchHostRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}

	patch := HostPatch{DisplayName: req.DisplayName, AnsibleHost: req.AnsibleHost}
	if patch.Empty() {
		respondError(w, http.StatusBadRequest, errors.New("at least one of display_name, ansible_host is required"))
		return
	}

	results := a.svc.PatchHosts(r.Context(), ids, patch, middleware.GetReqID(r.Context()))

	payload := make([]map[string]any, 0, len(results))
	for _, res := range results {
		entry := map[string]any{"id": res.ID}
		if res.Err != nil {
			entry["status"] = statusForError(res.Err)
			entry["error"] = res.Err.Error()
		} else {
			entry["status"] = http.StatusOK
			entry["host"] = res.Host
		}
		payload = append(payload, entry)
	}

	respondJSON(w, http.StatusOK, map[string]any{"results": payload})
}

func (a *API) handleDeleteHost(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("valid host id is required"))
		return
	}

	if err := a.svc.DeleteHost(r.Context(), id, middleware.GetReqID(r.Context())); err != nil {
		respondError(w, statusForError(err), err)
		return
	}
	respondJSON(w, http.StatusOK, nil)
}

func parseIDList(raw string) ([]uuid.UUID, error) {
	parts := strings.Split(raw, ",")
	ids := make([]uuid.UUID, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := uuid.Parse(part)
		if err != nil {
			return nil, errors.New("valid host ids are required")
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, errors.New("at least one host id is required")
	}
	return ids, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}
