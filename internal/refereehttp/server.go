// Package refereehttp serves the Coordinator's referee interface
// (spec.md §4.1, §6): GET /teams for a read-only scoreboard view, and
// POST /award for manual bonus awards, routed with gorilla/mux. It
// also mounts /metrics for the Prometheus collectors registered by
// internal/metrics.
package refereehttp

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vimsent/lasertag/internal/coordinator"
	"github.com/vimsent/lasertag/internal/logging"
	"github.com/vimsent/lasertag/internal/model"
)

// AwardScorer is the subset of *coordinator.Coordinator the HTTP layer
// needs, kept narrow so handlers are easy to unit test against a fake.
type AwardScorer interface {
	Snapshot() coordinator.Snapshot
	AwardBonus(id model.TeamID, category string, points int) (model.Score, error)
}

// Server wires the referee HTTP surface onto a *mux.Router.
type Server struct {
	coord  AwardScorer
	points map[string]int
	log    *logging.Logger
}

// New builds a Server. awardPoints maps category name to its
// configured point value (config.Snapshot.AwardPoints keyed as
// strings, since the wire/JSON boundary is plain strings).
func New(coord AwardScorer, awardPoints map[string]int) *Server {
	return &Server{coord: coord, points: awardPoints, log: logging.New("referee-http")}
}

// Router builds the mux.Router for this server, ready to pass to
// http.ListenAndServe.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/teams", s.handleTeams).Methods(http.MethodGet)
	r.HandleFunc("/award", s.handleAward).Methods(http.MethodPost)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

type teamsResponse struct {
	Teams        map[string]teamView `json:"teams"`
	MatchRunning bool                `json:"match_running"`
	AwardsAllowed bool               `json:"awards_allowed"`
}

type teamView struct {
	TeamName string `json:"team_name"`
	Points   int    `json:"points"`
	Kills    int    `json:"kills"`
	Deaths   int    `json:"deaths"`
}

func (s *Server) handleTeams(w http.ResponseWriter, r *http.Request) {
	snap := s.coord.Snapshot()
	resp := teamsResponse{
		Teams:         make(map[string]teamView, len(snap.Teams)),
		MatchRunning:  snap.MatchRunning,
		AwardsAllowed: snap.AwardsAllowed,
	}
	for id, t := range snap.Teams {
		resp.Teams[strconv.Itoa(int(id))] = teamView{TeamName: t.TeamName, Points: t.Points, Kills: t.Kills, Deaths: t.Deaths}
	}
	writeJSON(w, http.StatusOK, resp)
}

type awardRequest struct {
	TeamID   int    `json:"team_id"`
	Category string `json:"category"`
}

func (s *Server) handleAward(w http.ResponseWriter, r *http.Request) {
	var req awardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed body", http.StatusBadRequest)
		return
	}

	points, ok := s.points[req.Category]
	if !ok {
		http.Error(w, "unknown category", http.StatusBadRequest)
		return
	}

	id := model.TeamID(req.TeamID)
	if !id.Valid() {
		http.Error(w, "unknown team", http.StatusNotFound)
		return
	}

	result, err := s.coord.AwardBonus(id, req.Category, points)
	switch err {
	case nil:
		writeJSON(w, http.StatusOK, teamView{Points: result.Points, Kills: result.Kills, Deaths: result.Deaths})
	case coordinator.ErrAwardsNotAllowed:
		http.Error(w, "awards not allowed in current phase", http.StatusForbidden)
	case coordinator.ErrUnknownTeam:
		http.Error(w, "unknown team", http.StatusNotFound)
	default:
		s.log.Error("award failed: %v", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
