package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fmuoria/CV-Analyzer/internal/agent"
	"github.com/fmuoria/CV-Analyzer/internal/export"
	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/metrics"
	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/webhook"
)

const (
	maxFormMemory = 32 << 20
	xlsxMIME      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Server handles HTTP requests
type Server struct {
	session *agent.Session
	files   *ingestion.FileHandler
	timeout time.Duration
}

// NewServer creates a new API server. A zero timeout leaves backend calls
// bound only by the request context.
func NewServer(session *agent.Session, files *ingestion.FileHandler, timeout time.Duration) *Server {
	metrics.Register()
	return &Server{
		session: session,
		files:   files,
		timeout: timeout,
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/jd/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/requirements", s.handleGetRequirements)
	mux.HandleFunc("PUT /api/requirements", s.handleReplaceRequirements)
	mux.HandleFunc("POST /api/requirements", s.handleAddRequirement)
	mux.HandleFunc("PATCH /api/requirements/{index}", s.handleUpdateRequirement)
	mux.HandleFunc("DELETE /api/requirements/{index}", s.handleRemoveRequirement)

	mux.HandleFunc("POST /api/cv/score", s.handleScore)
	mux.HandleFunc("GET /api/candidates", s.handleCandidates)
	mux.HandleFunc("POST /api/candidates/sort", s.handleToggleSort)
	mux.HandleFunc("GET /api/report.xlsx", s.handleReport)
	mux.HandleFunc("GET /api/batches", s.handleListBatches)
	mux.HandleFunc("DELETE /api/session", s.handleReset)

	mux.HandleFunc("GET /{$}", s.handleRoot)

	return s.loggingMiddleware(mux)
}

// handleRoot provides API information
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "CV Analyzer",
		"version": "1.0.0",
		"backend": s.session.BackendName(),
		"endpoints": map[string]string{
			"POST /api/jd/analyze":               "Analyze a job description into weighted requirements",
			"GET /api/requirements":              "Current requirements and weight sum",
			"PUT /api/requirements":              "Replace the requirement list",
			"POST /api/requirements":             "Add an empty requirement row",
			"PATCH /api/requirements/{index}":    "Edit one requirement",
			"DELETE /api/requirements/{index}":   "Remove one requirement",
			"POST /api/cv/score":                 "Score up to " + strconv.Itoa(s.session.MaxCVFiles()) + " PDF CVs",
			"GET /api/candidates?order=asc|desc": "Ranked candidates",
			"POST /api/candidates/sort":          "Toggle the sort direction",
			"GET /api/report.xlsx":               "Download the Excel report",
			"GET /api/batches":                   "Stored upload batch ids",
			"DELETE /api/session":                "Reset the session and clear uploads",
			"GET /health":                        "Health check",
			"GET /metrics":                       "Prometheus metrics",
		},
	})
}

// handleHealth provides a health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

type analyzeResponse struct {
	models.AnalyzeResult
	WeightSum  float64 `json:"weight_sum"`
	OverBudget bool    `json:"over_budget"`
}

// handleAnalyze stores the job description documents and runs an analysis
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	rawText := r.FormValue("raw_text")
	uploads, closeAll, err := formUploads(r.MultipartForm, "files")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	defer closeAll()

	if strings.TrimSpace(rawText) == "" && len(uploads) == 0 {
		s.respondError(w, http.StatusBadRequest, "raw_text or files is required")
		return
	}

	var files []*models.FileRef
	if len(uploads) > 0 {
		batch, err := s.files.SaveBatch(ingestion.KindJD, uploads)
		if err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		files = batch.Files
	}

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	result, err := s.session.Analyze(ctx, rawText, files)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	view := s.session.RequirementsView()
	s.respondJSON(w, http.StatusOK, analyzeResponse{
		AnalyzeResult: result,
		WeightSum:     view.WeightSum,
		OverBudget:    view.OverBudget,
	})
}

func (s *Server) handleGetRequirements(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.session.RequirementsView())
}

func (s *Server) handleReplaceRequirements(w http.ResponseWriter, r *http.Request) {
	var reqs []models.Requirement
	if err := json.NewDecoder(r.Body).Decode(&reqs); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid requirements: %v", err))
		return
	}
	s.session.SetRequirements(reqs)
	s.respondJSON(w, http.StatusOK, s.session.RequirementsView())
}

func (s *Server) handleAddRequirement(w http.ResponseWriter, r *http.Request) {
	s.session.AddRequirement()
	s.respondJSON(w, http.StatusCreated, s.session.RequirementsView())
}

func (s *Server) handleUpdateRequirement(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	var patch models.RequirementPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid requirement: %v", err))
		return
	}

	if _, err := s.session.UpdateRequirement(index, patch); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.session.RequirementsView())
}

func (s *Server) handleRemoveRequirement(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(r.PathValue("index"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "index must be an integer")
		return
	}
	if err := s.session.RemoveRequirement(index); err != nil {
		s.respondFailure(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, s.session.RequirementsView())
}

type scoreResponse struct {
	models.CandidatesResponse
	Skipped int `json:"skipped,omitempty"`
}

// handleScore stores the uploaded CVs and scores them against the current
// requirements. Non-PDF files and files past the cap are skipped. A "batch"
// field rescores a previously stored CV batch instead of new uploads.
// Requirements sent with the request replace the session's only once the
// files are accepted.
func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	reqs := s.session.Requirements()
	override := false
	if raw := r.FormValue("requirements"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &reqs); err != nil {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("Invalid requirements: %v", err))
			return
		}
		override = true
	}
	if len(reqs) == 0 {
		s.respondFailure(w, agent.ErrNoRequirements)
		return
	}

	files, skipped, ok := s.scoreFiles(w, r)
	if !ok {
		return
	}

	if override {
		s.session.SetRequirements(reqs)
	}
	s.session.SetCVFiles(files)

	ctx, cancel := s.backendContext(r.Context())
	defer cancel()

	cands, err := s.session.Score(ctx)
	if err != nil {
		s.respondFailure(w, err)
		return
	}

	s.respondJSON(w, http.StatusOK, scoreResponse{
		CandidatesResponse: candidatesResponse(cands, s.session.SortDescending()),
		Skipped:            skipped,
	})
}

// scoreFiles resolves the CVs of a score request, either from a stored batch
// or from fresh uploads. It writes the error response itself when !ok.
func (s *Server) scoreFiles(w http.ResponseWriter, r *http.Request) (files []*models.FileRef, skipped int, ok bool) {
	if id := r.FormValue("batch"); id != "" {
		batch, err := s.files.LoadBatch(id)
		if err != nil {
			s.respondError(w, http.StatusNotFound, err.Error())
			return nil, 0, false
		}
		if batch.Kind != ingestion.KindCV {
			s.respondError(w, http.StatusBadRequest, fmt.Sprintf("batch %s holds %s files, not CVs", id, batch.Kind))
			return nil, 0, false
		}
		if len(batch.Files) == 0 {
			s.respondFailure(w, agent.ErrNoFiles)
			return nil, 0, false
		}
		return batch.Files, 0, true
	}

	uploads, closeAll, err := formUploads(r.MultipartForm, "files")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return nil, 0, false
	}
	defer closeAll()

	pdfs := ingestion.FilterPDF(uploads)
	kept := ingestion.LimitFiles(pdfs, s.session.MaxCVFiles())
	skipped = len(uploads) - len(kept)
	if skipped > 0 {
		logging.Warnf("Skipping %d CV upload(s): only PDFs are accepted, at most %d per run", skipped, s.session.MaxCVFiles())
	}
	if len(kept) == 0 {
		s.respondFailure(w, agent.ErrNoFiles)
		return nil, 0, false
	}

	batch, err := s.files.SaveBatch(ingestion.KindCV, kept)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return nil, 0, false
	}
	return batch.Files, skipped, true
}

func (s *Server) handleListBatches(w http.ResponseWriter, r *http.Request) {
	ids, err := s.files.ListBatches()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"batches": ids,
		"count":   len(ids),
	})
}

// handleReset clears the session and removes every stored upload
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.session.Reset()
	if err := s.files.ClearUploads(); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	logging.Infof("Session reset and uploads cleared")
	s.respondJSON(w, http.StatusOK, s.session.RequirementsView())
}

func (s *Server) handleCandidates(w http.ResponseWriter, r *http.Request) {
	desc := s.session.SortDescending()
	switch order := r.URL.Query().Get("order"); order {
	case "":
	case "desc":
		desc = true
	case "asc":
		desc = false
	default:
		s.respondError(w, http.StatusBadRequest, "order must be 'asc' or 'desc'")
		return
	}
	s.respondJSON(w, http.StatusOK, candidatesResponse(s.session.Candidates(desc), desc))
}

func (s *Server) handleToggleSort(w http.ResponseWriter, r *http.Request) {
	desc := s.session.ToggleSort()
	s.respondJSON(w, http.StatusOK, candidatesResponse(s.session.Candidates(desc), desc))
}

// handleReport streams the Excel report for the current session
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	report := export.Report{
		JDID:         s.session.JDID(),
		Requirements: s.session.Requirements(),
		Candidates:   s.session.Candidates(true),
		Generated:    time.Now(),
	}

	var buf bytes.Buffer
	if err := report.Write(&buf); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", xlsxMIME)
	w.Header().Set("Content-Disposition", `attachment; filename="cv-analysis.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logging.Warnf("Failed to send report: %v", err)
	}
}

func (s *Server) backendContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, s.timeout)
}

func candidatesResponse(cands []models.Candidate, desc bool) models.CandidatesResponse {
	order := "asc"
	if desc {
		order = "desc"
	}
	return models.CandidatesResponse{Candidates: cands, Order: order, Count: len(cands)}
}

// formUploads opens every file part under key in upload order. The returned
// func closes them.
func formUploads(form *multipart.Form, key string) ([]ingestion.Upload, func(), error) {
	headers := form.File[key]
	uploads := make([]ingestion.Upload, 0, len(headers))
	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			f.Close()
		}
	}

	for _, fh := range headers {
		file, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("failed to open uploaded file %s: %w", fh.Filename, err)
		}
		opened = append(opened, file)

		ct := fh.Header.Get("Content-Type")
		if ct == "application/octet-stream" {
			ct = ""
		}
		uploads = append(uploads, ingestion.Upload{Name: fh.Filename, ContentType: ct, Content: file})
	}
	return uploads, closeAll, nil
}

// statusFor maps session and backend errors onto HTTP statuses
func statusFor(err error) int {
	var svcErr *webhook.ServiceError
	switch {
	case errors.Is(err, agent.ErrIndexOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, agent.ErrNoRequirements), errors.Is(err, agent.ErrNoFiles):
		return http.StatusConflict
	case errors.As(err, &svcErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.Errorf("Request failed: %v", err)
	}
	s.respondError(w, status, err.Error())
}

// respondJSON sends a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warnf("Failed to encode JSON response: %v", err)
	}
}

// respondError sends an error response
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		logging.Infof("%s %s %d %s %s", r.Method, r.URL.Path, rec.status, time.Since(start).Round(time.Millisecond), r.RemoteAddr)
	})
}
