// Package artifacts gathers declared output paths after a run and persists
// them to a blob store under run-scoped keys.
package artifacts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/sync/errgroup"

	"github.com/gantryci/gantry/pkg/models"
	"github.com/gantryci/gantry/pkg/store"
	"github.com/gantryci/gantry/pkg/utils"
)

// Collector persists run artifacts. Collection is best-effort: a missing or
// unreadable source becomes a warning, never an error, and never aborts the
// remaining specs.
type Collector interface {
	Collect(ctx context.Context, run *models.Run, specs []models.ArtifactSpec) ([]models.ArtifactRecord, []models.Warning)

	// Put persists an engine-produced blob (step logs) as a run artifact.
	Put(ctx context.Context, run *models.Run, name string, r io.Reader) (models.ArtifactRecord, error)
}

// StoreCollector collects into a BlobStore. Uploads for independent specs run
// concurrently; keys are prefixed with the run ID so concurrent runs never
// interfere.
type StoreCollector struct {
	blobs store.BlobStore
}

func NewStoreCollector(blobs store.BlobStore) *StoreCollector {
	return &StoreCollector{blobs: blobs}
}

func (c *StoreCollector) Collect(ctx context.Context, run *models.Run, specs []models.ArtifactSpec) ([]models.ArtifactRecord, []models.Warning) {
	collected := make([][]models.ArtifactRecord, len(specs))
	warned := make([][]models.Warning, len(specs))

	var eg errgroup.Group
	eg.SetLimit(4)
	for i, spec := range specs {
		i, spec := i, spec
		eg.Go(func() error {
			collected[i], warned[i] = c.collectOne(ctx, run, spec)
			return nil
		})
	}
	eg.Wait()

	var records []models.ArtifactRecord
	var warnings []models.Warning
	for i := range specs {
		records = append(records, collected[i]...)
		warnings = append(warnings, warned[i]...)
	}
	return records, warnings
}

func (c *StoreCollector) collectOne(ctx context.Context, run *models.Run, spec models.ArtifactSpec) ([]models.ArtifactRecord, []models.Warning) {
	matches, err := doublestar.Glob(os.DirFS(run.WorkingDir), spec.Source)
	if err != nil {
		return nil, []models.Warning{{Artifact: spec.Name, Reason: fmt.Sprintf("invalid source pattern %q: %v", spec.Source, err)}}
	}
	if len(matches) == 0 {
		return nil, []models.Warning{{Artifact: spec.Name, Reason: fmt.Sprintf("source %q does not exist", spec.Source)}}
	}

	var records []models.ArtifactRecord
	var warnings []models.Warning
	for _, match := range matches {
		name := spec.Name
		if len(matches) > 1 {
			name = spec.Name + "/" + match
		}

		record, err := c.persist(ctx, run, name, filepath.Join(run.WorkingDir, filepath.FromSlash(match)))
		if err != nil {
			warnings = append(warnings, models.Warning{Artifact: name, Reason: err.Error()})
			continue
		}
		records = append(records, record)
	}
	return records, warnings
}

// persist uploads one matched path. Directories are bundled as .tar.gz before
// upload so a single blob round-trips the whole tree.
func (c *StoreCollector) persist(ctx context.Context, run *models.Run, name, path string) (models.ArtifactRecord, error) {
	info, err := os.Stat(path)
	if err != nil {
		return models.ArtifactRecord{}, fmt.Errorf("could not stat %s: %v", path, err)
	}

	if info.IsDir() {
		var buf bytes.Buffer
		if err := utils.Compress(path, &buf); err != nil {
			return models.ArtifactRecord{}, fmt.Errorf("could not bundle directory %s: %v", path, err)
		}
		return c.Put(ctx, run, name+".tar.gz", &buf)
	}

	f, err := os.Open(path)
	if err != nil {
		return models.ArtifactRecord{}, fmt.Errorf("could not open %s: %v", path, err)
	}
	defer f.Close()
	return c.Put(ctx, run, name, f)
}

func (c *StoreCollector) Put(ctx context.Context, run *models.Run, name string, r io.Reader) (models.ArtifactRecord, error) {
	counted := &countingReader{r: r}
	location, err := c.blobs.Put(ctx, run.ID+"/"+name, counted)
	if err != nil {
		return models.ArtifactRecord{}, fmt.Errorf("could not store artifact %s: %v", name, err)
	}
	return models.ArtifactRecord{
		Name:      name,
		Location:  location,
		SizeBytes: counted.n,
	}, nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
