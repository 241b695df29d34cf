package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/IshaanNene/itemreviewed/internal/claimreview"
	"github.com/IshaanNene/itemreviewed/internal/config"
	"github.com/IshaanNene/itemreviewed/internal/types"
)

// Extractor builds records from single pages and ClaimReview objects.
type Extractor interface {
	ParsePage(ctx context.Context, pageURL string, opts claimreview.PageOptions) (*types.ClaimReviewRecord, error)
	BuildItem(ctx context.Context, item types.FeedItem, translate bool) *types.ClaimReviewRecord
}

// BatchRunner runs page batches in the background.
type BatchRunner interface {
	RunPages(ctx context.Context, urls []string) ([]*types.ClaimReviewRecord, error)
	StatsSnapshot() map[string]any
}

// Job statuses.
const (
	JobPending = "pending"
	JobRunning = "running"
	JobDone    = "done"
	JobFailed  = "failed"
)

// Job tracks a batch of pages submitted through the API.
type Job struct {
	ID         string                     `json:"id"`
	Status     string                     `json:"status"`
	URLs       []string                   `json:"urls"`
	CreatedAt  time.Time                  `json:"created_at"`
	FinishedAt *time.Time                 `json:"finished_at,omitempty"`
	Error      string                     `json:"error,omitempty"`
	Records    []*types.ClaimReviewRecord `json:"records,omitempty"`
}

// Server exposes extraction over HTTP.
type Server struct {
	mux       *http.ServeMux
	server    *http.Server
	cfg       config.APIConfig
	scrape    config.ScrapeConfig
	extractor Extractor
	runner    BatchRunner
	matcher   *claimreview.Matcher
	logger    *slog.Logger

	jobs   map[string]*Job
	jobsMu sync.RWMutex
	queue  chan *Job
	nextID int
}

// NewServer creates a new API server. runner may be nil, which disables jobs.
func NewServer(cfg *config.Config, extractor Extractor, runner BatchRunner, matcher *claimreview.Matcher, logger *slog.Logger) *Server {
	if matcher == nil {
		matcher = claimreview.NewMatcher(cfg.Scrape.ItemReviewedPaths, nil)
	}
	s := &Server{
		mux:       http.NewServeMux(),
		cfg:       cfg.API,
		scrape:    cfg.Scrape,
		extractor: extractor,
		runner:    runner,
		matcher:   matcher,
		logger:    logger.With("component", "api_server"),
		jobs:      make(map[string]*Job),
		queue:     make(chan *Job, 64),
	}

	s.registerRoutes()
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start starts the job worker and the HTTP listener. Both stop when ctx is done.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	s.server = &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 10 * time.Second}
	s.logger.Info("API server starting", "addr", addr)

	go s.work(ctx)

	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(shutdownCtx)
}

// work runs queued jobs one at a time.
func (s *Server) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-s.queue:
			s.runJob(ctx, job)
		}
	}
}

func (s *Server) runJob(ctx context.Context, job *Job) {
	s.setJob(job.ID, func(j *Job) { j.Status = JobRunning })
	s.logger.Info("job started", "id", job.ID, "pages", len(job.URLs))

	records, err := s.runner.RunPages(ctx, job.URLs)

	s.setJob(job.ID, func(j *Job) {
		now := time.Now()
		j.FinishedAt = &now
		j.Records = records
		if err != nil {
			j.Status = JobFailed
			j.Error = err.Error()
			return
		}
		j.Status = JobDone
	})
	s.logger.Info("job finished", "id", job.ID, "records", len(records), "error", err)
}

func (s *Server) setJob(id string, fn func(*Job)) {
	s.jobsMu.Lock()
	defer s.jobsMu.Unlock()
	if j, ok := s.jobs[id]; ok {
		fn(j)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)

	s.mux.HandleFunc("POST /api/pages", s.handleParsePage)
	s.mux.HandleFunc("POST /api/items", s.handleBuildItems)
	s.mux.HandleFunc("POST /api/resolve", s.handleResolve)

	s.mux.HandleFunc("POST /api/jobs", s.handleCreateJob)
	s.mux.HandleFunc("GET /api/jobs", s.handleListJobs)
	s.mux.HandleFunc("GET /api/jobs/{id}", s.handleGetJob)

	s.mux.HandleFunc("GET /api/stats", s.handleStats)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

// handleParsePage scrapes one fact-check page synchronously.
func (s *Server) handleParsePage(w http.ResponseWriter, r *http.Request) {
	var body struct {
		URL         string `json:"url"`
		LocateLinks *bool  `json:"locate_links"`
		Translate   *bool  `json:"translate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if err := config.ValidateURL(body.URL); err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	opts := claimreview.PageOptions{
		LocateLinks: boolOr(body.LocateLinks, s.scrape.LocateLinks),
		Translate:   boolOr(body.Translate, s.scrape.Translate),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	rec, err := s.extractor.ParsePage(ctx, body.URL, opts)
	if err != nil {
		status := http.StatusBadGateway
		var fe *types.FetchError
		if errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound {
			status = http.StatusNotFound
		}
		s.jsonError(w, status, err.Error())
		return
	}
	if rec == nil {
		s.jsonError(w, http.StatusUnprocessableEntity, types.ErrNoClaimReview.Error())
		return
	}
	s.jsonResponse(w, http.StatusOK, rec)
}

// handleBuildItems builds records from ClaimReview objects posted as a single object or an array.
func (s *Server) handleBuildItems(w http.ResponseWriter, r *http.Request) {
	var raw json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	var element types.FeedElement
	if err := json.Unmarshal([]byte(`{"item":`+string(raw)+`}`), &element); err != nil {
		s.jsonError(w, http.StatusBadRequest, err.Error())
		return
	}

	translate := r.URL.Query().Get("translate") == "true"
	ctx, cancel := s.requestContext(r)
	defer cancel()

	records := make([]*types.ClaimReviewRecord, 0, len(element.Item))
	for _, item := range element.Item {
		if !item.Eligible() {
			continue
		}
		records = append(records, s.extractor.BuildItem(ctx, item, translate))
	}
	s.jsonResponse(w, http.StatusOK, records)
}

// handleResolve runs the item matcher on a raw itemReviewed value.
func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		FactcheckURL string           `json:"factcheck_url"`
		ItemReviewed types.Descriptor `json:"itemReviewed"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if body.FactcheckURL == "" {
		s.jsonError(w, http.StatusBadRequest, "factcheck_url is required")
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{
		"factcheck_url":  body.FactcheckURL,
		"items_reviewed": s.matcher.Resolve(body.ItemReviewed, body.FactcheckURL),
	})
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "batch runner not configured")
		return
	}
	var body struct {
		URLs []string `json:"urls"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.jsonError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if len(body.URLs) == 0 {
		s.jsonError(w, http.StatusBadRequest, "urls must not be empty")
		return
	}
	if len(body.URLs) > s.cfg.MaxJobPages {
		s.jsonError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("at most %d urls per job", s.cfg.MaxJobPages))
		return
	}
	for _, u := range body.URLs {
		if err := config.ValidateURL(u); err != nil {
			s.jsonError(w, http.StatusBadRequest, fmt.Sprintf("%s: %v", u, err))
			return
		}
	}

	s.jobsMu.Lock()
	s.nextID++
	job := &Job{
		ID:        fmt.Sprintf("job-%d", s.nextID),
		Status:    JobPending,
		URLs:      body.URLs,
		CreatedAt: time.Now(),
	}
	s.jobs[job.ID] = job
	s.jobsMu.Unlock()

	select {
	case s.queue <- job:
	default:
		s.setJob(job.ID, func(j *Job) {
			j.Status = JobFailed
			j.Error = "job queue full"
		})
		s.jsonError(w, http.StatusServiceUnavailable, "job queue full")
		return
	}

	s.jsonResponse(w, http.StatusAccepted, s.snapshot(job.ID))
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	s.jobsMu.RLock()
	jobs := make([]Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		summary := *j
		summary.Records = nil
		jobs = append(jobs, summary)
	}
	s.jobsMu.RUnlock()

	sort.Slice(jobs, func(a, b int) bool { return jobs[a].CreatedAt.Before(jobs[b].CreatedAt) })
	s.jsonResponse(w, http.StatusOK, jobs)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	job := s.snapshot(r.PathValue("id"))
	if job == nil {
		s.jsonError(w, http.StatusNotFound, "job not found")
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		s.jsonError(w, http.StatusServiceUnavailable, "batch runner not configured")
		return
	}
	s.jsonResponse(w, http.StatusOK, s.runner.StatsSnapshot())
}

// snapshot copies a job under the read lock.
func (s *Server) snapshot(id string) *Job {
	s.jobsMu.RLock()
	defer s.jobsMu.RUnlock()
	j, ok := s.jobs[id]
	if !ok {
		return nil
	}
	cp := *j
	return &cp
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	if s.cfg.RequestTimeout > 0 {
		return context.WithTimeout(r.Context(), s.cfg.RequestTimeout)
	}
	return context.WithCancel(r.Context())
}

func (s *Server) jsonError(w http.ResponseWriter, status int, msg string) {
	s.jsonResponse(w, status, map[string]string{"error": msg})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.logger.Debug("write response failed", "error", err)
	}
}

func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}
