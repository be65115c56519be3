package ingestion

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/fmuoria/CV-Analyzer/internal/logging"
	"github.com/fmuoria/CV-Analyzer/internal/metrics"
	"github.com/fmuoria/CV-Analyzer/internal/models"
)

const (
	manifestName = "manifest.json"
	pdfMIME      = "application/pdf"

	KindJD = "jd"
	KindCV = "cv"
)

// Upload is one incoming document before it is stored
type Upload struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// Batch is an ordered set of stored uploads. Order is the upload order and
// is what candidates are correlated against.
type Batch struct {
	ID        string            `json:"id"`
	Kind      string            `json:"kind"`
	CreatedAt time.Time         `json:"created_at"`
	Files     []*models.FileRef `json:"-"`

	Entries []ManifestEntry `json:"files"`
}

// ManifestEntry records one stored file of a batch
type ManifestEntry struct {
	Name        string `json:"name"`
	Stored      string `json:"stored"`
	Size        int64  `json:"size"`
	ContentType string `json:"content_type"`
}

// FileHandler manages file operations for job description and CV uploads
type FileHandler struct {
	uploadsDir string
}

// NewFileHandler creates a new file handler
func NewFileHandler(uploadsDir string) *FileHandler {
	return &FileHandler{
		uploadsDir: uploadsDir,
	}
}

// UploadsDir returns the root directory batches are stored under
func (fh *FileHandler) UploadsDir() string {
	return fh.uploadsDir
}

// SaveBatch stores uploads under a fresh batch directory and writes a
// manifest recording their order
func (fh *FileHandler) SaveBatch(kind string, uploads []Upload) (*Batch, error) {
	batch := &Batch{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Files:     make([]*models.FileRef, 0, len(uploads)),
		Entries:   make([]ManifestEntry, 0, len(uploads)),
	}

	dir := filepath.Join(fh.uploadsDir, batch.ID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create batch directory: %w", err)
	}

	for i, up := range uploads {
		stored := fmt.Sprintf("%02d_%s", i, safeName(up.Name))
		ref, err := saveFile(filepath.Join(dir, stored), up)
		if err != nil {
			os.RemoveAll(dir)
			return nil, err
		}
		batch.Files = append(batch.Files, ref)
		batch.Entries = append(batch.Entries, ManifestEntry{
			Name:        ref.Name,
			Stored:      stored,
			Size:        ref.Size,
			ContentType: ref.ContentType,
		})
	}

	if err := writeManifest(filepath.Join(dir, manifestName), batch); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	metrics.IncFiles(kind, "accepted", len(batch.Files))
	logging.Infof("Stored %s batch %s with %d file(s)", kind, batch.ID, len(batch.Files))
	return batch, nil
}

func writeManifest(path string, batch *Batch) error {
	data, err := json.MarshalIndent(batch, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func saveFile(path string, up Upload) (*models.FileRef, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if up.Content == nil {
		up.Content = strings.NewReader("")
	}

	// sniff the head so uploads without a declared type still get one
	var head bytes.Buffer
	src := io.TeeReader(io.LimitReader(up.Content, 3072), &head)
	n1, err := io.Copy(file, src)
	if err != nil {
		return nil, fmt.Errorf("failed to write file %s: %w", up.Name, err)
	}
	n2, err := io.Copy(file, up.Content)
	if err != nil {
		return nil, fmt.Errorf("failed to write file %s: %w", up.Name, err)
	}

	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = DetectContentType(up.Name, head.Bytes())
	}

	return &models.FileRef{
		Name:        up.Name,
		Path:        path,
		Size:        n1 + n2,
		ContentType: contentType,
	}, nil
}

// LoadBatch reads a stored batch back in upload order
func (fh *FileHandler) LoadBatch(id string) (*Batch, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid batch id %q: %w", id, err)
	}

	dir := filepath.Join(fh.uploadsDir, id)
	data, err := os.ReadFile(filepath.Join(dir, manifestName))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var batch Batch
	if err := json.Unmarshal(data, &batch); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	batch.Files = make([]*models.FileRef, len(batch.Entries))
	for i, e := range batch.Entries {
		batch.Files[i] = &models.FileRef{
			Name:        e.Name,
			Path:        filepath.Join(dir, e.Stored),
			Size:        e.Size,
			ContentType: e.ContentType,
		}
	}
	return &batch, nil
}

// ListBatches returns the ids of stored batches
func (fh *FileHandler) ListBatches() ([]string, error) {
	entries, err := os.ReadDir(fh.uploadsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, fmt.Errorf("failed to read uploads directory: %w", err)
	}

	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if _, err := uuid.Parse(e.Name()); e.IsDir() && err == nil {
			ids = append(ids, e.Name())
		}
	}
	return ids, nil
}

// ClearUploads removes all files from the uploads directory
func (fh *FileHandler) ClearUploads() error {
	if err := os.RemoveAll(fh.uploadsDir); err != nil {
		return fmt.Errorf("failed to clear uploads directory: %w", err)
	}
	return os.MkdirAll(fh.uploadsDir, 0755)
}

// DetectContentType picks a MIME type from the leading bytes, falling back
// to the file extension
func DetectContentType(name string, head []byte) string {
	if len(head) > 0 {
		if mt := mimetype.Detect(head); mt.String() != "application/octet-stream" {
			ct, _, _ := strings.Cut(mt.String(), ";")
			return ct
		}
	}
	if ct := extensionMIME(name); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

func extensionMIME(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return pdfMIME
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	case ".txt":
		return "text/plain"
	}
	return ""
}

// IsPDF reports whether an upload is declared or named as a PDF
func IsPDF(name, contentType string) bool {
	ct, _, _ := strings.Cut(contentType, ";")
	if strings.TrimSpace(ct) == pdfMIME {
		return true
	}
	return contentType == "" && strings.EqualFold(filepath.Ext(name), ".pdf")
}

// FilterPDF keeps only PDF uploads, preserving order
func FilterPDF(uploads []Upload) []Upload {
	out := make([]Upload, 0, len(uploads))
	for _, up := range uploads {
		if IsPDF(up.Name, up.ContentType) {
			out = append(out, up)
		}
	}
	if dropped := len(uploads) - len(out); dropped > 0 {
		metrics.IncFiles("drop", "rejected", dropped)
	}
	return out
}

// LimitFiles truncates items to at most limit entries. A limit of zero or
// less means no limit.
func LimitFiles[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func safeName(name string) string {
	base := filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		return "file"
	}
	return base
}
