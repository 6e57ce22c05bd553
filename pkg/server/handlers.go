package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ha1tch/hotelmig/pkg/config"
	"github.com/ha1tch/hotelmig/pkg/migration"
	"github.com/ha1tch/hotelmig/pkg/models"
	"github.com/ha1tch/hotelmig/pkg/remote"
	"github.com/ha1tch/hotelmig/pkg/storage"
)

const dateLayout = "2006-01-02"

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Status  int    `json:"status"`
	} `json:"error"`
}

// profileRequest is the body of a profile creation; unlike the stored
// profile it carries the password.
type profileRequest struct {
	Name            string `json:"name"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	Protocol        string `json:"protocol"`
	Database        string `json:"database"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	CutoverDate     string `json:"cutover_date"`
	CutoverOperator string `json:"cutover_operator"`
}

type cutoverRequest struct {
	CutoverDate     string `json:"cutover_date"`
	CutoverOperator string `json:"cutover_operator"`
}

type identityResponse struct {
	Entity   models.EntityType `json:"entity"`
	RemoteID int               `json:"remote_id"`
	LocalID  int               `json:"local_id"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"version": config.Version,
	})
}

// handleCreateProfile verifies the connection and stores a new profile
func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	cutover, op, err := parseCutover(req.CutoverDate, req.CutoverOperator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Name == "" || req.Host == "" || req.Database == "" {
		s.writeError(w, http.StatusBadRequest, "name, host and database are required")
		return
	}
	if req.Protocol == "" {
		req.Protocol = remote.ProtocolJSONRPC
	}

	p := &models.ConnectionProfile{
		Name:            req.Name,
		Host:            req.Host,
		Port:            req.Port,
		Protocol:        req.Protocol,
		Database:        req.Database,
		Username:        req.Username,
		Password:        req.Password,
		CutoverDate:     cutover,
		CutoverOperator: op,
	}
	if err := s.runner.CreateProfile(r.Context(), p); err != nil {
		s.writeFailure(w, err, "Failed to create profile")
		return
	}

	s.writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.store.ListProfiles(r.Context())
	if err != nil {
		s.writeFailure(w, err, "Failed to list profiles")
		return
	}
	s.writeJSON(w, http.StatusOK, profiles)
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}

	p, err := s.store.GetProfile(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err, "Failed to get profile")
		return
	}
	s.writeJSON(w, http.StatusOK, p)
}

// handleUpdateCutover changes the cutover date and operator; earlier
// migrated records and their identities are untouched.
func (s *Server) handleUpdateCutover(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}

	var req cutoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	date, op, err := parseCutover(req.CutoverDate, req.CutoverOperator)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.UpdateCutover(r.Context(), id, date, op); err != nil {
		s.writeFailure(w, err, "Failed to update cutover")
		return
	}

	p, err := s.store.GetProfile(r.Context(), id)
	if err != nil {
		s.writeFailure(w, err, "Failed to get profile")
		return
	}
	s.logger.Info().Int("profile_id", id).Str("cutover_date", req.CutoverDate).Str("cutover_operator", string(op)).Msg("Updated cutover")
	s.writeJSON(w, http.StatusOK, p)
}

// handleRunPhase runs one phase. A phase aborted by a fatal error still
// returns its partial report next to the error.
func (s *Server) handleRunPhase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}
	phase, err := migration.ParsePhase(chi.URLParam(r, "phase"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := s.runner.RunPhase(r.Context(), id, phase)
	if err != nil {
		if report == nil {
			s.writeFailure(w, err, "Failed to run phase")
			return
		}
		s.writeJSON(w, statusFor(err), map[string]interface{}{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRunAll(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}

	reports, err := s.runner.RunAll(r.Context(), id)
	if err != nil {
		if len(reports) == 0 {
			s.writeFailure(w, err, "Failed to run migration")
			return
		}
		s.writeJSON(w, statusFor(err), map[string]interface{}{
			"error":   err.Error(),
			"reports": reports,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
	})
}

// handleListLog returns a profile's log entries newest first, filtered by
// run_id, entity, level and limit.
func (s *Server) handleListLog(w http.ResponseWriter, r *http.Request) {
	id, ok := s.profileID(w, r)
	if !ok {
		return
	}
	if _, err := s.store.GetProfile(r.Context(), id); err != nil {
		s.writeFailure(w, err, "Failed to get profile")
		return
	}

	q := r.URL.Query()
	filter := storage.LogFilter{
		ProfileID: id,
		RunID:     q.Get("run_id"),
		Level:     models.LogLevel(q.Get("level")),
	}
	if entity := q.Get("entity"); entity != "" {
		e, ok := models.ParseEntityType(entity)
		if !ok {
			s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity %q", entity))
			return
		}
		filter.EntityType = e
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "Invalid limit")
			return
		}
		filter.Limit = n
	}

	entries, err := s.store.ListLog(r.Context(), filter)
	if err != nil {
		s.writeFailure(w, err, "Failed to list log")
		return
	}
	s.writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	entity, ok := models.ParseEntityType(chi.URLParam(r, "entity"))
	if !ok {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown entity %q", chi.URLParam(r, "entity")))
		return
	}
	remoteID, err := strconv.Atoi(chi.URLParam(r, "remote_id"))
	if err != nil || remoteID <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid remote ID")
		return
	}

	localID, found, err := s.identity.Resolve(r.Context(), entity, remoteID)
	if err != nil {
		s.writeFailure(w, err, "Failed to resolve identity")
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound,
			fmt.Sprintf("%s %d has not been migrated", entity, remoteID))
		return
	}

	s.writeJSON(w, http.StatusOK, identityResponse{Entity: entity, RemoteID: remoteID, LocalID: localID})
}

func (s *Server) profileID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		s.writeError(w, http.StatusBadRequest, "Invalid profile ID")
		return 0, false
	}
	return id, true
}

func parseCutover(date, operator string) (time.Time, models.CutoverOperator, error) {
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cutover_date %q (want YYYY-MM-DD)", date)
	}
	op, err := models.ParseCutoverOperator(operator)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, op, nil
}

// statusFor maps engine errors to HTTP statuses
func statusFor(err error) int {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrAlreadyExists), errors.Is(err, migration.ErrRunInProgress):
		return http.StatusConflict
	case errors.Is(err, migration.ErrUnknownPhase):
		return http.StatusBadRequest
	case errors.Is(err, remote.ErrAuth):
		return http.StatusUnauthorized
	case remote.IsFatal(err):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) writeFailure(w http.ResponseWriter, err error, message string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg(message)
		s.writeError(w, status, message)
		return
	}
	s.writeError(w, status, err.Error())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	var resp errorResponse
	resp.Error.Message = message
	resp.Error.Status = status
	s.writeJSON(w, status, resp)
}
