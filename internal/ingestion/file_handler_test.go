package ingestion

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveAndLoadBatch(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	uploads := []Upload{
		{Name: "zoe.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 zoe")},
		{Name: "../adam cv.pdf", ContentType: "application/pdf", Content: strings.NewReader("%PDF-1.4 adam")},
		{Name: "notes.txt", Content: strings.NewReader("plain words here")},
	}

	batch, err := fh.SaveBatch(KindCV, uploads)
	require.NoError(t, err)
	require.Len(t, batch.Files, 3)

	assert.Equal(t, "zoe.pdf", batch.Files[0].Name)
	assert.Equal(t, "../adam cv.pdf", batch.Files[1].Name, "display name kept as uploaded")
	assert.Equal(t, filepath.Join(fh.UploadsDir(), batch.ID, "01_adam_cv.pdf"), batch.Files[1].Path)
	assert.Equal(t, int64(len("%PDF-1.4 zoe")), batch.Files[0].Size)
	assert.Equal(t, "text/plain", batch.Files[2].ContentType, "missing type is detected")

	loaded, err := fh.LoadBatch(batch.ID)
	require.NoError(t, err)
	assert.Equal(t, KindCV, loaded.Kind)
	require.Len(t, loaded.Files, 3)
	for i := range batch.Files {
		assert.Equal(t, *batch.Files[i], *loaded.Files[i], "file %d survives the round trip in order", i)
	}

	data, err := os.ReadFile(loaded.Files[1].Path)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 adam", string(data))

	ids, err := fh.ListBatches()
	require.NoError(t, err)
	assert.Equal(t, []string{batch.ID}, ids)
}

func TestLoadBatchErrors(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	_, err := fh.LoadBatch("../../etc")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid batch id")

	_, err = fh.LoadBatch("6f1c1f64-8d7e-4a4b-9a57-1f1de0c5a0a1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read manifest")
}

func TestSaveEmptyBatch(t *testing.T) {
	fh := NewFileHandler(t.TempDir())

	batch, err := fh.SaveBatch(KindJD, nil)
	require.NoError(t, err)
	assert.Empty(t, batch.Files)

	loaded, err := fh.LoadBatch(batch.ID)
	require.NoError(t, err)
	assert.Empty(t, loaded.Files)
}

// blockManifest occupies the manifest path of the batch being written, so the
// manifest write fails after every file was stored
type blockManifest struct {
	t    *testing.T
	root string
	done bool
}

func (b *blockManifest) Read(p []byte) (int, error) {
	if !b.done {
		b.done = true
		entries, err := os.ReadDir(b.root)
		require.NoError(b.t, err)
		require.Len(b.t, entries, 1)
		require.NoError(b.t, os.Mkdir(filepath.Join(b.root, entries[0].Name(), manifestName), 0755))
	}
	return 0, io.EOF
}

func TestSaveBatchManifestFailureRemovesBatch(t *testing.T) {
	root := t.TempDir()
	fh := NewFileHandler(root)

	_, err := fh.SaveBatch(KindCV, []Upload{{Name: "a.pdf", ContentType: "application/pdf", Content: &blockManifest{t: t, root: root}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write manifest")

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestClearUploads(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")
	fh := NewFileHandler(dir)

	_, err := fh.SaveBatch(KindCV, []Upload{{Name: "a.pdf", Content: strings.NewReader("x")}})
	require.NoError(t, err)

	require.NoError(t, fh.ClearUploads())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	ids, err := NewFileHandler(filepath.Join(dir, "missing")).ListBatches()
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFilterPDF(t *testing.T) {
	uploads := []Upload{
		{Name: "a.pdf", ContentType: "application/pdf"},
		{Name: "b.docx", ContentType: "application/vnd.openxmlformats-officedocument.wordprocessingml.document"},
		{Name: "c.PDF"},
		{Name: "d.pdf", ContentType: "image/png"},
		{Name: "e.txt"},
	}

	got := FilterPDF(uploads)
	names := make([]string, len(got))
	for i, up := range got {
		names[i] = up.Name
	}
	assert.Equal(t, []string{"a.pdf", "c.PDF"}, names)
}

func TestLimitFiles(t *testing.T) {
	items := []int{1, 2, 3, 4, 5}

	assert.Equal(t, []int{1, 2, 3}, LimitFiles(items, 3))
	assert.Equal(t, items, LimitFiles(items, 10))
	assert.Equal(t, items, LimitFiles(items, 0))
}

func TestDetectContentType(t *testing.T) {
	assert.Equal(t, "application/pdf", DetectContentType("x.bin", []byte("%PDF-1.7\n")))
	assert.Equal(t, "application/pdf", DetectContentType("x.pdf", nil))
	assert.Equal(t, "application/octet-stream", DetectContentType("x.bin", nil))
}

func TestSafeName(t *testing.T) {
	assert.Equal(t, "cv.pdf", safeName("cv.pdf"))
	assert.Equal(t, "my_cv_2024_.pdf", safeName(`C:\docs\my cv (2024).pdf`))
	assert.Equal(t, "file", safeName(".."))
}
