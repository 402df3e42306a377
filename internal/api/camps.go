package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/basecamp/internal/db"
	"github.com/user/basecamp/internal/provider"
)

type createCampRequest struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

func (h *handler) createCamp(w http.ResponseWriter, r *http.Request) {
	var req createCampRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		jsonError(w, http.StatusBadRequest, "camp name is required")
		return
	}
	if strings.TrimSpace(req.Model) == "" {
		req.Model = provider.DefaultModelRef
	}

	camp := &db.Camp{Name: strings.TrimSpace(req.Name), Model: strings.TrimSpace(req.Model)}
	if err := h.campRepo.Create(r.Context(), camp); err != nil {
		serviceError(w, err)
		return
	}
	if err := os.MkdirAll(filepath.Join(h.campsRoot, camp.ID), 0o755); err != nil {
		jsonError(w, http.StatusInternalServerError, "failed to create camp directory")
		return
	}

	jsonResponse(w, http.StatusCreated, camp)
}

func (h *handler) listCamps(w http.ResponseWriter, r *http.Request) {
	camps, err := h.campRepo.List(r.Context())
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, camps)
}

func (h *handler) getCamp(w http.ResponseWriter, r *http.Request) {
	camp, err := h.campRepo.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	if camp == nil {
		jsonError(w, http.StatusNotFound, "camp not found")
		return
	}
	jsonResponse(w, http.StatusOK, camp)
}

func (h *handler) deleteCamp(w http.ResponseWriter, r *http.Request) {
	campID := r.PathValue("id")
	camp, err := h.campRepo.Get(r.Context(), campID)
	if err != nil {
		serviceError(w, err)
		return
	}
	if camp == nil {
		jsonError(w, http.StatusNotFound, "camp not found")
		return
	}

	if err := h.campRepo.Delete(r.Context(), campID); err != nil {
		serviceError(w, err)
		return
	}
	if err := os.RemoveAll(filepath.Join(h.campsRoot, campID)); err != nil {
		slog.Warn("failed to remove camp directory", "camp_id", campID, "error", err)
	}
	jsonResponse(w, http.StatusNoContent, nil)
}
