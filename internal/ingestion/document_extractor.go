package ingestion

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"

	"github.com/fmuoria/CV-Analyzer/internal/models"
)

const (
	// MinExtractedTextLength is the minimum text length required for successful extraction
	MinExtractedTextLength = 50
	// BinarySampleSize is the number of bytes to sample for binary detection
	BinarySampleSize = 1000
	// BinaryThreshold is the proportion of non-printable characters that indicates binary data
	BinaryThreshold = 0.3

	docxMIME = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// ExtractText reads a stored document and returns its plain text. The kind
// is taken from the content type and falls back to the file extension.
func ExtractText(ref *models.FileRef) (string, error) {
	if ref == nil {
		return "", fmt.Errorf("no file")
	}

	data, err := os.ReadFile(ref.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", ref.Name, err)
	}

	switch documentKind(ref) {
	case ".txt":
		if IsBinaryData(string(data)) {
			return "", fmt.Errorf("file %s looks binary, not plain text", ref.Name)
		}
		return sanitizeUTF8(string(data)), nil
	case ".pdf":
		return extractPDF(ref.Name, data)
	case ".docx":
		return extractDOCX(ref.Name, data)
	default:
		return "", fmt.Errorf("unsupported file type: %s", ref.Name)
	}
}

func documentKind(ref *models.FileRef) string {
	ct, _, _ := strings.Cut(ref.ContentType, ";")
	switch strings.TrimSpace(ct) {
	case pdfMIME:
		return ".pdf"
	case docxMIME:
		return ".docx"
	case "text/plain":
		return ".txt"
	}
	return strings.ToLower(filepath.Ext(ref.Name))
}

func extractPDF(name string, data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to read pdf %s: %w", name, err)
	}

	var sb strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		sb.WriteString(text)
		sb.WriteString("\n")
	}

	text := sanitizeUTF8(strings.TrimSpace(sb.String()))
	if len(text) < MinExtractedTextLength {
		return "", fmt.Errorf("extracted text is too short (likely a scanned PDF): %s", name)
	}
	return text, nil
}

func extractDOCX(name string, data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("failed to parse docx %s: %w", name, err)
	}
	defer doc.Close()

	return sanitizeUTF8(stripXMLTags(doc.Editable().GetContent())), nil
}

// stripXMLTags drops WordprocessingML markup, turning paragraph ends into
// newlines
func stripXMLTags(content string) string {
	content = strings.ReplaceAll(content, "</w:p>", "\n")

	var sb strings.Builder
	inTag := false
	for _, r := range content {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return strings.TrimSpace(html.UnescapeString(sb.String()))
}

// sanitizeUTF8 replaces invalid byte sequences so text is safe to send to
// the model and to render
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "�")
}

// IsBinaryData checks if content appears to be binary (PDF/ZIP markers)
func IsBinaryData(content string) bool {
	if len(content) == 0 {
		return false
	}

	if strings.HasPrefix(content, "%PDF-") {
		return true
	}

	// ZIP magic number (DOCX files)
	if len(content) >= 2 && content[:2] == "PK" {
		return true
	}

	sampleSize := min(BinarySampleSize, len(content))
	nonPrintable := 0
	for i := 0; i < sampleSize; i++ {
		ch := content[i]
		if ch < 32 && ch != '\n' && ch != '\r' && ch != '\t' {
			nonPrintable++
		}
	}

	return float64(nonPrintable)/float64(sampleSize) > BinaryThreshold
}
