package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/xuri/excelize/v2"

	"github.com/fmuoria/CV-Analyzer/internal/agent"
	"github.com/fmuoria/CV-Analyzer/internal/ingestion"
	"github.com/fmuoria/CV-Analyzer/internal/models"
	"github.com/fmuoria/CV-Analyzer/internal/webhook"
)

type fakeBackend struct {
	mu          sync.Mutex
	analyzeBody string
	scoreBody   string
	err         error
	gotFiles    []*models.FileRef
	gotText     string
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) Analyze(_ context.Context, rawText string, files []*models.FileRef) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotText, b.gotFiles = rawText, files
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.analyzeBody), nil
}

func (b *fakeBackend) Score(_ context.Context, _ []models.Requirement, files []*models.FileRef) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gotFiles = files
	if b.err != nil {
		return nil, b.err
	}
	return []byte(b.scoreBody), nil
}

type testFile struct {
	name        string
	contentType string
	content     string
}

func multipartBody(t *testing.T, fields map[string]string, files []testFile) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", `form-data; name="files"; filename="`+f.name+`"`)
		if f.contentType != "" {
			h.Set("Content-Type", f.contentType)
		}
		part, err := w.CreatePart(h)
		require.NoError(t, err)
		_, err = part.Write([]byte(f.content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func newTestServer(t *testing.T, backend *fakeBackend, maxFiles int) (*Server, *agent.Session) {
	t.Helper()
	session := agent.NewSession(backend, maxFiles)
	return NewServer(session, ingestion.NewFileHandler(t.TempDir()), 0), session
}

func do(t *testing.T, h http.Handler, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func pdf(name string) testFile {
	return testFile{name: name, contentType: "application/pdf", content: "%PDF-1.4 " + name}
}

func TestHealthAndRoot(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodGet, "/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "fake", gjson.Get(rec.Body.String(), "backend").String())

	rec = do(t, h, http.MethodGet, "/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, 0)
	rec := do(t, srv.Router(), http.MethodGet, "/metrics", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestAnalyze(t *testing.T) {
	backend := &fakeBackend{analyzeBody: `{"jd_id":"jd-9","requirements_text":"python 5, sql 3"}`}
	srv, _ := newTestServer(t, backend, 0)

	body, ct := multipartBody(t, map[string]string{"raw_text": "Data engineer"}, []testFile{pdf("jd.pdf")})
	rec := do(t, srv.Router(), http.MethodPost, "/api/jd/analyze", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := gjson.Parse(rec.Body.String())
	assert.Equal(t, "jd-9", out.Get("jd_id").String())
	assert.Equal(t, "parsed", out.Get("source").String())
	assert.Equal(t, "Python", out.Get("requirements.0.skill").String())
	assert.Equal(t, 0.38, out.Get("requirements.1.weight").Float())
	assert.InDelta(t, 1.01, out.Get("weight_sum").Float(), 1e-9)
	assert.True(t, out.Get("over_budget").Bool())

	assert.Equal(t, "Data engineer", backend.gotText)
	require.Len(t, backend.gotFiles, 1)
	assert.Equal(t, "jd.pdf", backend.gotFiles[0].Name)
	assert.FileExists(t, backend.gotFiles[0].Path)
}

func TestAnalyzeValidation(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPost, "/api/jd/analyze", strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct := multipartBody(t, map[string]string{"raw_text": "  "}, nil)
	rec = do(t, h, http.MethodPost, "/api/jd/analyze", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "raw_text or files is required")
}

func TestAnalyzeServiceError(t *testing.T) {
	backend := &fakeBackend{err: &webhook.ServiceError{Op: webhook.OpAnalyze, StatusCode: 500, Body: "boom"}}
	srv, _ := newTestServer(t, backend, 0)

	body, ct := multipartBody(t, map[string]string{"raw_text": "jd"}, nil)
	rec := do(t, srv.Router(), http.MethodPost, "/api/jd/analyze", body, ct)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, gjson.Get(rec.Body.String(), "error").String(), "Analyze failed 500: boom")
}

func TestRequirementEndpoints(t *testing.T) {
	srv, session := newTestServer(t, &fakeBackend{}, 0)
	h := srv.Router()

	rec := do(t, h, http.MethodPut, "/api/requirements", strings.NewReader(`[{"skill":"Go","weight":0.5},{"skill":"SQL","weight":0.3}]`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 0.8, gjson.Get(rec.Body.String(), "weight_sum").Float(), 1e-9)

	rec = do(t, h, http.MethodPost, "/api/requirements", nil, "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, int64(3), gjson.Get(rec.Body.String(), "requirements.#").Int())

	rec = do(t, h, http.MethodPatch, "/api/requirements/2", strings.NewReader(`{"skill":"Kafka","weight":0.4}`), "application/json")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gjson.Get(rec.Body.String(), "over_budget").Bool())

	rec = do(t, h, http.MethodDelete, "/api/requirements/0", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.Requirement{{Skill: "SQL", Weight: 0.3}, {Skill: "Kafka", Weight: 0.4}}, session.Requirements())

	rec = do(t, h, http.MethodGet, "/api/requirements", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "SQL", gjson.Get(rec.Body.String(), "requirements.0.skill").String())
}

func TestRequirementEndpointErrors(t *testing.T) {
	srv, _ := newTestServer(t, &fakeBackend{}, 0)
	h := srv.Router()

	tests := []struct {
		name   string
		method string
		target string
		body   string
		want   int
	}{
		{name: "bad list", method: http.MethodPut, target: "/api/requirements", body: `{"skill":"go"}`, want: http.StatusBadRequest},
		{name: "index not a number", method: http.MethodPatch, target: "/api/requirements/x", body: `{}`, want: http.StatusBadRequest},
		{name: "patch out of range", method: http.MethodPatch, target: "/api/requirements/3", body: `{"weight":0.1}`, want: http.StatusNotFound},
		{name: "bad patch", method: http.MethodPatch, target: "/api/requirements/0", body: `nope`, want: http.StatusBadRequest},
		{name: "delete out of range", method: http.MethodDelete, target: "/api/requirements/0", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, tt.method, tt.target, strings.NewReader(tt.body), "application/json")
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
			assert.NotEmpty(t, gjson.Get(rec.Body.String(), "error").String())
		})
	}
}

func TestScore(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[{"name":"Ada","overall":40},{"name":"Bob","overall":88}]`}
	srv, _ := newTestServer(t, backend, 0)

	body, ct := multipartBody(t,
		map[string]string{"requirements": `[{"skill":"Go","weight":1}]`},
		[]testFile{pdf("ada.pdf"), {name: "notes.txt", contentType: "text/plain", content: "x"}, {name: "bob.pdf", content: "%PDF-1.4 bob"}},
	)
	rec := do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := gjson.Parse(rec.Body.String())
	assert.Equal(t, "desc", out.Get("order").String())
	assert.Equal(t, int64(2), out.Get("count").Int())
	assert.Equal(t, int64(1), out.Get("skipped").Int())
	assert.Equal(t, "Bob", out.Get("candidates.0.name").String())
	assert.Equal(t, "bob.pdf", out.Get("candidates.0.file.name").String())
	assert.False(t, out.Get("candidates.0.file.path").Exists())

	require.Len(t, backend.gotFiles, 2)
	assert.Equal(t, "ada.pdf", backend.gotFiles[0].Name)
}

func TestScoreCapsFiles(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[]`}
	srv, session := newTestServer(t, backend, 2)
	session.SetRequirements([]models.Requirement{{Skill: "Go", Weight: 1}})

	body, ct := multipartBody(t, nil, []testFile{pdf("a.pdf"), pdf("b.pdf"), pdf("c.pdf")})
	rec := do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "skipped").Int())
	assert.Len(t, backend.gotFiles, 2)
}

func TestScorePreconditions(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[]`}
	srv, session := newTestServer(t, backend, 0)
	h := srv.Router()

	body, ct := multipartBody(t, nil, []testFile{pdf("a.pdf")})
	rec := do(t, h, http.MethodPost, "/api/cv/score", body, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), agent.ErrNoRequirements.Error())

	session.SetRequirements([]models.Requirement{{Skill: "Go", Weight: 1}})
	body, ct = multipartBody(t, nil, []testFile{{name: "cv.docx", contentType: "application/msword", content: "x"}})
	rec = do(t, h, http.MethodPost, "/api/cv/score", body, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), agent.ErrNoFiles.Error())
	assert.Nil(t, backend.gotFiles)
}

func TestCandidatesAndSort(t *testing.T) {
	backend := &fakeBackend{scoreBody: `{"items":[{"name":"Ada","overall":40},{"name":"Bob","overall":88},{"name":"Cy","overall":60}]}`}
	srv, session := newTestServer(t, backend, 0)
	h := srv.Router()
	session.SetRequirements([]models.Requirement{{Skill: "Go", Weight: 1}})
	session.SetCVFiles([]*models.FileRef{{Name: "a.pdf"}, {Name: "b.pdf"}, {Name: "c.pdf"}})
	_, err := session.Score(context.Background())
	require.NoError(t, err)

	names := func(rec *httptest.ResponseRecorder) []string {
		var resp models.CandidatesResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		out := make([]string, 0, len(resp.Candidates))
		for _, c := range resp.Candidates {
			out = append(out, c.Name)
		}
		return out
	}

	rec := do(t, h, http.MethodGet, "/api/candidates", nil, "")
	assert.Equal(t, []string{"Bob", "Cy", "Ada"}, names(rec))

	rec = do(t, h, http.MethodGet, "/api/candidates?order=asc", nil, "")
	assert.Equal(t, []string{"Ada", "Cy", "Bob"}, names(rec))
	assert.True(t, session.SortDescending(), "query order does not change the session")

	rec = do(t, h, http.MethodPost, "/api/candidates/sort", nil, "")
	assert.Equal(t, "asc", gjson.Get(rec.Body.String(), "order").String())
	assert.Equal(t, []string{"Ada", "Cy", "Bob"}, names(rec))

	rec = do(t, h, http.MethodGet, "/api/candidates?order=sideways", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReportDownload(t *testing.T) {
	srv, session := newTestServer(t, &fakeBackend{}, 0)
	session.SetRequirements([]models.Requirement{{Skill: "Go", Weight: 1}})

	rec := do(t, srv.Router(), http.MethodGet, "/api/report.xlsx", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, xlsxMIME, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "cv-analysis.xlsx")

	f, err := excelize.OpenReader(rec.Body)
	require.NoError(t, err)
	defer f.Close()
	skill, err := f.GetCellValue("Requirements", "B2")
	require.NoError(t, err)
	assert.Equal(t, "Go", skill)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: agent.ErrIndexOutOfRange, want: http.StatusNotFound},
		{err: agent.ErrNoFiles, want: http.StatusConflict},
		{err: &webhook.ServiceError{Op: webhook.OpScore, StatusCode: 503}, want: http.StatusBadGateway},
		{err: context.DeadlineExceeded, want: http.StatusGatewayTimeout},
		{err: io.ErrUnexpectedEOF, want: http.StatusBadGateway},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), "%v", tt.err)
	}
}

func TestScoreRejectedUploadsKeepRequirements(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[]`}
	srv, session := newTestServer(t, backend, 0)
	original := []models.Requirement{{Skill: "Go", Weight: 1}}
	session.SetRequirements(original)

	body, ct := multipartBody(t,
		map[string]string{"requirements": `[{"skill":"Rust","weight":0.5}]`},
		[]testFile{{name: "cv.docx", contentType: "application/msword", content: "x"}},
	)
	rec := do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, original, session.Requirements())

	body, ct = multipartBody(t,
		map[string]string{"requirements": `[{"skill":"Rust","weight":0.5}]`, "batch": "6f1c1f64-8d7e-4a4b-9a57-1f1de0c5a0a1"},
		nil,
	)
	rec = do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, original, session.Requirements())
	assert.Nil(t, backend.gotFiles)
}

func TestScoreStoredBatch(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[{"name":"Ada","overall":70},{"name":"Bob","overall":20}]`}
	srv, session := newTestServer(t, backend, 0)
	session.SetRequirements([]models.Requirement{{Skill: "Go", Weight: 1}})

	batch, err := srv.files.SaveBatch(ingestion.KindCV, []ingestion.Upload{
		{Name: "ada.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 ada")},
		{Name: "bob.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 bob")},
	})
	require.NoError(t, err)

	body, ct := multipartBody(t, map[string]string{"batch": batch.ID}, nil)
	rec := do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	out := gjson.Parse(rec.Body.String())
	assert.Equal(t, "Ada", out.Get("candidates.0.name").String())
	assert.Equal(t, "ada.pdf", out.Get("candidates.0.file.name").String())
	assert.Equal(t, "bob.pdf", out.Get("candidates.1.file.name").String())
	require.Len(t, backend.gotFiles, 2)
	assert.Equal(t, batch.Files[0].Path, backend.gotFiles[0].Path)

	jd, err := srv.files.SaveBatch(ingestion.KindJD, nil)
	require.NoError(t, err)
	body, ct = multipartBody(t, map[string]string{"batch": jd.ID}, nil)
	rec = do(t, srv.Router(), http.MethodPost, "/api/cv/score", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestResetClearsSessionAndUploads(t *testing.T) {
	backend := &fakeBackend{scoreBody: `[{"name":"Ada","overall":70}]`}
	srv, session := newTestServer(t, backend, 0)
	h := srv.Router()

	body, ct := multipartBody(t, map[string]string{"requirements": `[{"skill":"Go","weight":1}]`}, []testFile{pdf("ada.pdf")})
	rec := do(t, h, http.MethodPost, "/api/cv/score", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/batches", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(1), gjson.Get(rec.Body.String(), "count").Int())

	rec = do(t, h, http.MethodDelete, "/api/session", nil, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, int64(0), gjson.Get(rec.Body.String(), "requirements.#").Int())

	assert.Empty(t, session.Requirements())
	assert.Empty(t, session.Candidates(true))
	assert.Empty(t, session.CVFiles())

	ids, err := srv.files.ListBatches()
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.DirExists(t, srv.files.UploadsDir())
}
