package artifacts

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/store"
	"github.com/gantryci/gantry/pkg/utils"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestCollectSingleFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "log.txt", "build log")
	run := models.NewRun("demo", dir)
	blobs := store.NewMemStore()
	c := NewStoreCollector(blobs)

	records, warnings := c.Collect(context.Background(), run, []models.ArtifactSpec{
		{Name: "build-log", Source: "log.txt"},
	})
	require.Empty(t, warnings)
	require.Len(t, records, 1)
	assert.Equal(t, "build-log", records[0].Name)
	assert.Equal(t, int64(len("build log")), records[0].SizeBytes)

	r, err := blobs.Get(context.Background(), records[0].Location)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "build log", string(data))
}

func TestCollectMissingSourceWarnsOnly(t *testing.T) {
	run := models.NewRun("demo", t.TempDir())
	c := NewStoreCollector(store.NewMemStore())

	records, warnings := c.Collect(context.Background(), run, []models.ArtifactSpec{
		{Name: "report", Source: "report.xml"},
	})
	assert.Empty(t, records)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0].Reason, "does not exist")
}

func TestCollectPartialFailure(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "present.txt", "here")
	run := models.NewRun("demo", dir)
	c := NewStoreCollector(store.NewMemStore())

	records, warnings := c.Collect(context.Background(), run, []models.ArtifactSpec{
		{Name: "missing", Source: "absent.txt"},
		{Name: "present", Source: "present.txt"},
	})
	require.Len(t, records, 1)
	assert.Equal(t, "present", records[0].Name)
	require.Len(t, warnings, 1)
	assert.Equal(t, "missing", warnings[0].Artifact)
}

func TestCollectGlob(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "logs/build.log", "b")
	writeFile(t, dir, "logs/test.log", "t")
	run := models.NewRun("demo", dir)
	c := NewStoreCollector(store.NewMemStore())

	records, warnings := c.Collect(context.Background(), run, []models.ArtifactSpec{
		{Name: "logs", Source: "logs/*.log"},
	})
	require.Empty(t, warnings)
	require.Len(t, records, 2)
	names := []string{records[0].Name, records[1].Name}
	assert.Contains(t, names, "logs/logs/build.log")
	assert.Contains(t, names, "logs/logs/test.log")
}

func TestCollectDirectoryBundles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "reports/unit/results.txt", "ok")
	run := models.NewRun("demo", dir)
	blobs := store.NewMemStore()
	c := NewStoreCollector(blobs)

	records, warnings := c.Collect(context.Background(), run, []models.ArtifactSpec{
		{Name: "reports", Source: "reports"},
	})
	require.Empty(t, warnings)
	require.Len(t, records, 1)
	assert.Equal(t, "reports.tar.gz", records[0].Name)

	r, err := blobs.Get(context.Background(), records[0].Location)
	require.NoError(t, err)
	defer r.Close()

	extracted := t.TempDir()
	require.NoError(t, utils.Decompress(r, extracted))
	data, err := os.ReadFile(filepath.Join(extracted, "unit", "results.txt"))
	require.NoError(t, err)
	assert.Equal(t, "ok", string(data))
}

func TestPutStepLog(t *testing.T) {
	run := models.NewRun("demo", t.TempDir())
	c := NewStoreCollector(store.NewMemStore())

	record, err := c.Put(context.Background(), run, "build-stdout.log", strings.NewReader("output"))
	require.NoError(t, err)
	assert.Equal(t, "build-stdout.log", record.Name)
	assert.Equal(t, int64(6), record.SizeBytes)
	assert.Contains(t, record.Location, run.ID)
}
