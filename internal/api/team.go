package api

import (
	"net/http"
	"strconv"

	"github.com/user/basecamp/internal/team"
)

func (h *handler) getTeamConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.teams.GetTeamConfig(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, cfg)
}

func (h *handler) putAgent(w http.ResponseWriter, r *http.Request) {
	var agent team.AgentConfig
	if err := decodeJSON(r, &agent); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stored, err := h.teams.CreateAgent(r.Context(), r.PathValue("id"), agent)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, stored)
}

func (h *handler) deleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := h.teams.RemoveAgent(r.Context(), r.PathValue("id"), r.PathValue("agentID")); err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusNoContent, nil)
}

func (h *handler) putSettings(w http.ResponseWriter, r *http.Request) {
	var update team.SettingsUpdate
	if err := decodeJSON(r, &update); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	cfg, err := h.teams.UpdateSettings(r.Context(), r.PathValue("id"), update)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, cfg)
}

type decomposeRequest struct {
	UserTask string `json:"user_task"`
}

func (h *handler) decomposeTask(w http.ResponseWriter, r *http.Request) {
	var req decomposeRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	plan, err := h.teams.DecomposeTask(r.Context(), r.PathValue("id"), req.UserTask)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, plan)
}

type executeStepRequest struct {
	AgentID string `json:"agent_id"`
	team.DelegationStep
}

func (h *handler) executeStep(w http.ResponseWriter, r *http.Request) {
	var req executeStepRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	result, err := h.teams.ExecuteAgentStep(r.Context(), r.PathValue("id"), req.AgentID, req.DelegationStep)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, result)
}

type reflectRequest struct {
	ArtifactPath string `json:"artifact_path"`
	Rounds       int    `json:"rounds"`
}

func (h *handler) runReflection(w http.ResponseWriter, r *http.Request) {
	var req reflectRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	summary, err := h.teams.RunReflectionLoop(r.Context(), r.PathValue("id"), req.ArtifactPath, req.Rounds)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, summary)
}

type promoteRequest struct {
	ArtifactPath string `json:"artifact_path"`
}

type promoteResponse struct {
	PromotedPath string `json:"promoted_path"`
}

func (h *handler) promoteArtifact(w http.ResponseWriter, r *http.Request) {
	var req promoteRequest
	if err := decodeJSON(r, &req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	promoted, err := h.teams.PromoteArtifact(r.Context(), r.PathValue("id"), req.ArtifactPath)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, promoteResponse{PromotedPath: promoted})
}

func (h *handler) getTeamBus(w http.ResponseWriter, r *http.Request) {
	entries, err := h.teams.GetTeamBus(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, entries)
}

func (h *handler) getTeamStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.teams.GetTeamStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, status)
}

func (h *handler) listTeamRuns(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	runs, err := h.runRepo.ListByCamp(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		serviceError(w, err)
		return
	}
	jsonResponse(w, http.StatusOK, runs)
}
