package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/nvandessel/bankrun/internal/montecarlo"
	"github.com/nvandessel/bankrun/internal/simulation"
	"github.com/nvandessel/bankrun/internal/store"
	"github.com/nvandessel/bankrun/internal/visualization"
)

// runRequest creates a step-by-step run. Params fields left out keep the
// server defaults.
type runRequest struct {
	Params *simulation.Params `json:"params"`
	Seed   *uint64            `json:"seed"`
	Stream uint64             `json:"stream"`
}

type runResponse struct {
	ID        string              `json:"id"`
	CreatedAt time.Time           `json:"created_at"`
	Params    simulation.Params   `json:"params"`
	Snapshot  simulation.Snapshot `json:"snapshot"`
}

type stepResponse struct {
	Records  []simulation.TurnRecord `json:"records"`
	Snapshot simulation.Snapshot     `json:"snapshot"`
}

// batchRequest runs a Monte-Carlo batch. Omitted fields keep the server
// defaults.
type batchRequest struct {
	Label   string              `json:"label"`
	Params  *simulation.Params  `json:"params"`
	Options *montecarlo.Options `json:"options"`
}

func errorJSON(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{"error": err.Error()})
}

// health reports liveness and the number of live sessions.
func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.Sessions()})
}

// getConfig returns the defaults applied to requests.
func (s *Server) getConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"params": s.defaults, "batch": s.batch})
}

// createRun starts a new session.
func (s *Server) createRun(c *gin.Context) {
	params := s.defaults
	req := runRequest{Params: &params}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid run request: %w", err))
		return
	}
	if params.Nodes > maxNodes {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("nodes=%d exceeds the limit of %d", params.Nodes, maxNodes))
		return
	}
	seed := s.batch.Seed
	if req.Seed != nil {
		seed = *req.Seed
	}

	e, err := simulation.New(params, seed, req.Stream)
	if err != nil {
		errorJSON(c, statusFor(err), err)
		return
	}

	id := uuid.NewString()
	if err := s.addSession(id, e); err != nil {
		errorJSON(c, statusFor(err), err)
		return
	}
	sess, _ := s.lookup(id)
	s.logger.Debug("run created", "id", id, "nodes", params.Nodes, "seed", seed)
	c.JSON(http.StatusCreated, runResponse{ID: id, CreatedAt: sess.created, Params: params, Snapshot: e.Snapshot()})
}

// stepRun advances a session by ?turns=n turns (default 1), stopping early
// when the run ends.
func (s *Server) stepRun(c *gin.Context) {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("run not found: %s", c.Param("id")))
		return
	}
	turns := 1
	if v := c.Query("turns"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errorJSON(c, http.StatusBadRequest, fmt.Errorf("turns must be a positive integer, got %q", v))
			return
		}
		turns = n
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	var records []simulation.TurnRecord
	for i := 0; i < turns && !sess.engine.Done(); i++ {
		rec, err := sess.engine.Step()
		if err != nil {
			errorJSON(c, statusFor(err), err)
			return
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		errorJSON(c, http.StatusConflict, simulation.ErrRunFinished)
		return
	}
	c.JSON(http.StatusOK, stepResponse{Records: records, Snapshot: sess.engine.Snapshot()})
}

// getSnapshot returns the session's current state.
func (s *Server) getSnapshot(c *gin.Context) {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("run not found: %s", c.Param("id")))
		return
	}
	sess.mu.Lock()
	snap := sess.engine.Snapshot()
	sess.mu.Unlock()
	c.JSON(http.StatusOK, snap)
}

// getGraph renders the session as ?format=json (default) or dot.
func (s *Server) getGraph(c *gin.Context) {
	sess, ok := s.lookup(c.Param("id"))
	if !ok {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("run not found: %s", c.Param("id")))
		return
	}
	format, err := visualization.ParseFormat(c.DefaultQuery("format", string(visualization.FormatJSON)))
	if err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	sess.mu.Lock()
	doc, err := visualization.Build(sess.engine.Snapshot(), sess.engine.Graph())
	sess.mu.Unlock()
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}

	if format == visualization.FormatDOT {
		c.Data(http.StatusOK, "text/vnd.graphviz; charset=utf-8", []byte(visualization.RenderDOT(doc)))
		return
	}
	c.JSON(http.StatusOK, doc)
}

// deleteRun drops a session.
func (s *Server) deleteRun(c *gin.Context) {
	if !s.removeSession(c.Param("id")) {
		errorJSON(c, http.StatusNotFound, fmt.Errorf("run not found: %s", c.Param("id")))
		return
	}
	c.Status(http.StatusNoContent)
}

// createBatch runs a batch synchronously and stores its report.
func (s *Server) createBatch(c *gin.Context) {
	params := s.defaults
	opts := s.batch
	req := batchRequest{Params: &params, Options: &opts}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("invalid batch request: %w", err))
		return
	}
	if opts.Runs > maxBatchRuns {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("runs=%d exceeds the limit of %d", opts.Runs, maxBatchRuns))
		return
	}
	if params.Nodes > maxNodes {
		errorJSON(c, http.StatusBadRequest, fmt.Errorf("nodes=%d exceeds the limit of %d", params.Nodes, maxNodes))
		return
	}
	if err := opts.Validate(); err != nil {
		errorJSON(c, http.StatusBadRequest, err)
		return
	}

	res, err := s.harness.Run(c.Request.Context(), params, opts)
	if err != nil {
		errorJSON(c, statusFor(err), err)
		return
	}

	report := store.NewReport(req.Label, res)
	if err := s.store.Save(c.Request.Context(), report); err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	c.JSON(http.StatusCreated, report)
}

// listBatches returns stored report summaries, newest first.
func (s *Server) listBatches(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			errorJSON(c, http.StatusBadRequest, fmt.Errorf("limit must be a non-negative integer, got %q", v))
			return
		}
		limit = n
	}
	summaries, err := s.store.List(c.Request.Context(), limit)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, err)
		return
	}
	if summaries == nil {
		summaries = []store.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"batches": summaries})
}

// getBatch returns a full stored report.
func (s *Server) getBatch(c *gin.Context) {
	report, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		errorJSON(c, statusFor(err), err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, simulation.ErrInvalidParams),
		errors.Is(err, montecarlo.ErrNoRuns):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, simulation.ErrRunFinished):
		return http.StatusConflict
	case errors.Is(err, ErrTooManySessions):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
