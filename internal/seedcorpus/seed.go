// Package seedcorpus loads demo resumes from YAML files and runs them
// through the full ingest pipeline so a fresh deployment has a searchable
// corpus.
package seedcorpus

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/resume-rag/internal/domain"
	"github.com/fairyhunter13/resume-rag/internal/ingest"
)

type seedYAML struct {
	Resumes []seedResume `yaml:"resumes"`
}

type seedResume struct {
	Filename string `yaml:"filename"`
	Text     string `yaml:"text"`
}

// Deps are the stores and pipeline the seeder writes through.
type Deps struct {
	Resumes  domain.ResumeRepository
	Jobs     domain.IngestJobRepository
	Pipeline *ingest.Pipeline
}

// SeedFile ingests every resume in one YAML seed file. Already-indexed
// content is skipped, so re-running the seeder is safe.
func SeedFile(ctx domain.Context, deps Deps, path string) (int, error) {
	// Constrain reads to the working directory unless explicitly allowed.
	abs, err := filepath.Abs(path)
	if err != nil {
		return 0, err
	}
	wd, err := os.Getwd()
	if err != nil {
		return 0, err
	}
	abs = filepath.Clean(abs)
	wd = filepath.Clean(wd)
	if os.Getenv("SEEDCORPUS_ALLOW_ABSPATHS") != "1" {
		if !strings.HasPrefix(abs, wd+string(os.PathSeparator)) && abs != wd {
			return 0, fmt.Errorf("disallowed path: %s", abs)
		}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("seed file not found: %s", path)
		}
		return 0, err
	}
	var doc seedYAML
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return 0, fmt.Errorf("yaml parse: %w", err)
	}
	if len(doc.Resumes) == 0 {
		return 0, fmt.Errorf("no resumes to seed in %s", path)
	}

	seeded := 0
	for _, sr := range doc.Resumes {
		text := strings.TrimSpace(sr.Text)
		if text == "" {
			continue
		}
		filename := sr.Filename
		if filename == "" {
			filename = "seed.txt"
		}
		if err := seedOne(ctx, deps, filename, text); err != nil {
			return seeded, fmt.Errorf("op=seedcorpus.seed %s: %w", filename, err)
		}
		seeded++
	}
	return seeded, nil
}

// seedOne stores one resume row and runs the ingest pipeline inline, no
// queue round-trip.
func seedOne(ctx domain.Context, deps Deps, filename, text string) error {
	hash := ingest.ContentHash([]byte(text))
	resumeID := ingest.ResumeID(filename, hash)

	if existing, err := deps.Resumes.FindByContentHash(ctx, hash); err == nil && existing.ChunkCount > 0 {
		slog.Info("seed already indexed", slog.String("resume_id", existing.ID))
		return nil
	}

	if err := deps.Resumes.Upsert(ctx, domain.Resume{
		ID:          resumeID,
		Filename:    filepath.Base(filename),
		FileFormat:  domain.FileFormatTXT,
		MIME:        "text/plain",
		Size:        int64(len(text)),
		ContentHash: hash,
		Text:        text,
	}); err != nil {
		return err
	}
	jobID, err := deps.Jobs.Create(ctx, domain.IngestJob{ResumeID: resumeID, Status: domain.JobQueued})
	if err != nil {
		return err
	}
	return deps.Pipeline.HandleIngest(ctx, domain.IngestTaskPayload{JobID: jobID, ResumeID: resumeID})
}

// SeedDir ingests every *.yaml / *.yml file in dir.
func SeedDir(ctx domain.Context, deps Deps, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		n, err := SeedFile(ctx, deps, filepath.Join(dir, e.Name()))
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
