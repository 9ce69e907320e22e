package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/desertthunder/histx/internal/aggregate"
	"github.com/desertthunder/histx/internal/importer"
	"github.com/desertthunder/histx/internal/models"
	"github.com/desertthunder/histx/internal/repositories"
	"github.com/desertthunder/histx/internal/shared"
	"github.com/desertthunder/histx/internal/tasks"
)

type importAccepted struct {
	JobID    string              `json:"job_id"`
	UserID   string              `json:"user_id"`
	Platform models.Platform     `json:"platform"`
	Status   models.ImportStatus `json:"status"`
	Files    int                 `json:"files"`
	Events   string              `json:"events"`
}

type jobResponse struct {
	ID          string               `json:"id"`
	UserID      string               `json:"user_id"`
	Platform    models.Platform      `json:"platform"`
	Status      models.ImportStatus  `json:"status"`
	StartedAt   *time.Time           `json:"started_at,omitempty"`
	CompletedAt *time.Time           `json:"completed_at,omitempty"`
	Result      *models.ImportResult `json:"result,omitempty"`
}

type modeResponse struct {
	UserID           string                `json:"user_id"`
	Mode             models.DataSourceMode `json:"mode"`
	Description      string                `json:"description"`
	AggregatePending bool                  `json:"aggregate_pending,omitempty"`
}

type modeRequest struct {
	Mode string `json:"mode"`
}

type topResponse struct {
	UserID  string                     `json:"user_id"`
	Artists []repositories.ArtistCount `json:"artists"`
	Tracks  []repositories.TrackCount  `json:"tracks"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleCreateImport spools the upload and starts a background job. The
// response is sent before parsing begins; progress is on the events stream.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	platform, err := importer.ParsePlatform(chi.URLParam(r, "platform"))
	if err != nil {
		respondErr(w, err)
		return
	}

	files, cleanup, err := s.spoolUploads(w, r)
	if err != nil {
		respondErr(w, err)
		return
	}

	job, err := s.runner.Submit(tasks.Request{UserID: userID, Platform: platform, Files: files}, cleanup)
	if err != nil {
		cleanup()
		respondErr(w, err)
		return
	}

	s.logger.Info("import accepted", "job", job.ID, "user", userID, "platform", platform, "files", len(files))
	respondJSON(w, http.StatusAccepted, importAccepted{
		JobID:    job.ID,
		UserID:   userID,
		Platform: platform,
		Status:   models.StatusRunning,
		Files:    len(files),
		Events:   fmt.Sprintf("/imports/%s/events", job.ID),
	})
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "jobID")

	if job, err := s.runner.Get(id); err == nil {
		res, _ := job.Result()
		respondJSON(w, http.StatusOK, jobResponse{
			ID:       job.ID,
			UserID:   job.UserID,
			Platform: job.Platform,
			Status:   res.Status,
			Result:   &res,
		})
		return
	}

	if s.history == nil {
		respondErr(w, fmt.Errorf("%w: %s", shared.ErrJobNotFound, id))
		return
	}
	record, err := s.history.Get(id)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toJobResponse(record))
}

func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		respondError(w, http.StatusNotImplemented, "import history is not configured")
		return
	}

	limit, err := queryInt(r, "limit", 20)
	if err != nil {
		respondErr(w, err)
		return
	}
	criteria := map[string]any{
		"user_id": chi.URLParam(r, "userID"),
		"status":  r.URL.Query().Get("status"),
		"limit":   limit,
	}

	records, err := s.history.List(criteria)
	if err != nil {
		respondErr(w, err)
		return
	}
	out := make([]jobResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toJobResponse(rec))
	}
	respondJSON(w, http.StatusOK, out)
}

// handleImportEvents streams a job's progress as Server-Sent Events.
//
// Events are replayed from ?offset= or Last-Event-ID, so a client that
// reconnects continues where it left off. The stream ends with a "result" event.
func (s *Server) handleImportEvents(w http.ResponseWriter, r *http.Request) {
	job, err := s.runner.Get(chi.URLParam(r, "jobID"))
	if err != nil {
		respondErr(w, err)
		return
	}

	offset, err := eventOffset(r)
	if err != nil {
		respondErr(w, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for u := range job.Subscribe(r.Context(), offset) {
		if err := writeEvent(w, strconv.Itoa(u.Seq), u.Phase.String(), u); err != nil {
			s.logger.Debug("event stream closed", "job", job.ID, "error", err)
			return
		}
		flusher.Flush()
	}

	if r.Context().Err() != nil {
		return
	}
	if res, done := job.Result(); done {
		writeEvent(w, "", "result", res)
		flusher.Flush()
	}
}

func writeEvent(w http.ResponseWriter, id, event string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if id != "" {
		if _, err := fmt.Fprintf(w, "id: %s\n", id); err != nil {
			return err
		}
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	return err
}

// eventOffset reads the first event to send. Last-Event-ID is the last one the client saw.
func eventOffset(r *http.Request) (int, error) {
	if last := r.Header.Get("Last-Event-ID"); last != "" {
		n, err := strconv.Atoi(last)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: Last-Event-ID %q", shared.ErrInvalidArgument, last)
		}
		return n + 1, nil
	}
	return queryInt(r, "offset", 0)
}

func (s *Server) handleGetMode(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	mode, err := s.modes.GetDataSourceMode(r.Context(), userID)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, modeResponse{UserID: userID, Mode: mode, Description: mode.Describe()})
}

// handlePutMode is the explicit user action that may move a user back to live-only.
func (s *Server) handlePutMode(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var req modeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		respondErr(w, fmt.Errorf("%w: %v", shared.ErrInvalidInput, err))
		return
	}
	mode, err := models.ParseDataSourceMode(req.Mode)
	if err != nil {
		respondErr(w, fmt.Errorf("%w: %v", shared.ErrInvalidMode, err))
		return
	}

	if err := s.modes.SetDataSourceMode(r.Context(), userID, mode); err != nil {
		respondErr(w, err)
		return
	}
	s.logger.Info("data source mode changed", "user", userID, "mode", mode)

	res := modeResponse{UserID: userID, Mode: mode, Description: mode.Describe()}
	if s.trigger != nil {
		if err := s.trigger.Trigger(r.Context(), aggregate.NewEvent(userID)); err != nil {
			s.logger.Warn("aggregate recalculation pending", "user", userID, "error", err)
			res.AggregatePending = true
		}
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	if s.rankings == nil {
		respondError(w, http.StatusNotImplemented, "rankings are not configured")
		return
	}
	userID := chi.URLParam(r, "userID")

	limit, err := queryInt(r, "limit", 10)
	if err != nil {
		respondErr(w, err)
		return
	}

	artists, err := s.rankings.TopArtists(r.Context(), userID, limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	tracks, err := s.rankings.TopTracks(r.Context(), userID, limit)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, topResponse{UserID: userID, Artists: artists, Tracks: tracks})
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s=%q", shared.ErrInvalidArgument, name, v)
	}
	return n, nil
}

func toJobResponse(j *models.ImportJob) jobResponse {
	started := j.StartedAt()
	resp := jobResponse{
		ID:          j.ID(),
		UserID:      j.UserID(),
		Platform:    j.Platform(),
		Status:      j.Status(),
		StartedAt:   &started,
		CompletedAt: j.CompletedAt(),
	}
	if j.CompletedAt() != nil {
		res := j.Result()
		resp.Result = &res
	}
	return resp
}
