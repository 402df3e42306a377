// Package api exposes the orchestration engine over HTTP. Routes are JSON
// in, JSON out, gated by a bearer token shared with the websocket hub.
package api

import (
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/user/basecamp/internal/db"
	"github.com/user/basecamp/internal/team"
)

type handler struct {
	campRepo  *db.CampRepo
	runRepo   *db.RunRepo
	teams     *team.Service
	campsRoot string
}

func NewRouter(conn *sql.DB, teams *team.Service, token string, campsRoot string) http.Handler {
	handler := &handler{
		campRepo:  db.NewCampRepo(conn),
		runRepo:   db.NewRunRepo(conn),
		teams:     teams,
		campsRoot: campsRoot,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/camps", handler.createCamp)
	mux.HandleFunc("GET /api/camps", handler.listCamps)
	mux.HandleFunc("GET /api/camps/{id}", handler.getCamp)
	mux.HandleFunc("DELETE /api/camps/{id}", handler.deleteCamp)

	mux.HandleFunc("GET /api/camps/{id}/team", handler.getTeamConfig)
	mux.HandleFunc("PUT /api/camps/{id}/team/agents", handler.putAgent)
	mux.HandleFunc("DELETE /api/camps/{id}/team/agents/{agentID}", handler.deleteAgent)
	mux.HandleFunc("PUT /api/camps/{id}/team/settings", handler.putSettings)

	mux.HandleFunc("POST /api/camps/{id}/team/decompose", handler.decomposeTask)
	mux.HandleFunc("POST /api/camps/{id}/team/steps/execute", handler.executeStep)
	mux.HandleFunc("POST /api/camps/{id}/team/reflect", handler.runReflection)
	mux.HandleFunc("POST /api/camps/{id}/team/promote", handler.promoteArtifact)

	mux.HandleFunc("GET /api/camps/{id}/team/bus", handler.getTeamBus)
	mux.HandleFunc("GET /api/camps/{id}/team/status", handler.getTeamStatus)
	mux.HandleFunc("GET /api/camps/{id}/team/runs", handler.listTeamRuns)

	return authMiddleware(token)(jsonMiddleware(corsMiddleware(mux)))
}

func authMiddleware(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
			if strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
				if strings.TrimSpace(authHeader[7:]) == token {
					next.ServeHTTP(w, r)
					return
				}
			}
			if r.URL.Query().Get("token") == token {
				next.ServeHTTP(w, r)
				return
			}

			jsonError(w, http.StatusUnauthorized, "unauthorized")
		})
	}
}

func jsonMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func decodeJSON(r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return io.ErrUnexpectedEOF
	}
	return nil
}
