// Package postgres provides PostgreSQL database adapters.
//
// It implements the repository ports with connection pooling and
// per-operation tracing.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fairyhunter13/resume-rag/internal/domain"
)

// PgxPool is a minimal subset of pgxpool used by the repos for easy testing.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// ResumeRepo persists and loads resumes using a minimal pgx pool.
type ResumeRepo struct{ Pool PgxPool }

// NewResumeRepo constructs a ResumeRepo with the given pool.
func NewResumeRepo(p PgxPool) *ResumeRepo { return &ResumeRepo{Pool: p} }

const resumeColumns = `id, filename, file_format, mime, size, content_hash, text, profile, parsing_method, chunk_count, created_at, updated_at`

// Upsert stores a resume, replacing any prior row with the same id.
func (r *ResumeRepo) Upsert(ctx domain.Context, res domain.Resume) error {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.Upsert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", "resumes"),
	)
	profile, err := json.Marshal(res.Profile)
	if err != nil {
		return fmt.Errorf("op=resume.upsert: %w", err)
	}
	now := time.Now().UTC()
	q := `INSERT INTO resumes (id, filename, file_format, mime, size, content_hash, text, profile, parsing_method, chunk_count, created_at, updated_at)
	      VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$11)
	      ON CONFLICT (id) DO UPDATE SET
	        filename=EXCLUDED.filename, file_format=EXCLUDED.file_format, mime=EXCLUDED.mime,
	        size=EXCLUDED.size, content_hash=EXCLUDED.content_hash, text=EXCLUDED.text,
	        profile=EXCLUDED.profile, parsing_method=EXCLUDED.parsing_method, updated_at=EXCLUDED.updated_at`
	_, err = r.Pool.Exec(ctx, q, res.ID, res.Filename, res.FileFormat, res.MIME, res.Size,
		res.ContentHash, res.Text, profile, res.ParsingMethod, res.ChunkCount, now)
	if err != nil {
		return fmt.Errorf("op=resume.upsert: %w", err)
	}
	return nil
}

// Get loads a resume by id.
func (r *ResumeRepo) Get(ctx domain.Context, id string) (domain.Resume, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.Get")
	defer span.End()
	q := `SELECT ` + resumeColumns + ` FROM resumes WHERE id=$1`
	return r.scanOne(r.Pool.QueryRow(ctx, q, id), "resume.get")
}

// FindByContentHash loads a resume by its content hash, for dedupe.
func (r *ResumeRepo) FindByContentHash(ctx domain.Context, hash string) (domain.Resume, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.FindByContentHash")
	defer span.End()
	q := `SELECT ` + resumeColumns + ` FROM resumes WHERE content_hash=$1 LIMIT 1`
	return r.scanOne(r.Pool.QueryRow(ctx, q, hash), "resume.find_hash")
}

func (r *ResumeRepo) scanOne(row pgx.Row, op string) (domain.Resume, error) {
	var res domain.Resume
	var profile []byte
	if err := row.Scan(&res.ID, &res.Filename, &res.FileFormat, &res.MIME, &res.Size,
		&res.ContentHash, &res.Text, &profile, &res.ParsingMethod, &res.ChunkCount,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Resume{}, fmt.Errorf("op=%s: %w", op, domain.ErrNotFound)
		}
		return domain.Resume{}, fmt.Errorf("op=%s: %w", op, err)
	}
	if len(profile) > 0 {
		if err := json.Unmarshal(profile, &res.Profile); err != nil {
			return domain.Resume{}, fmt.Errorf("op=%s: %w", op, err)
		}
	}
	return res, nil
}

// List returns all resumes ordered by ingest time, newest first.
func (r *ResumeRepo) List(ctx domain.Context) ([]domain.Resume, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.List")
	defer span.End()
	q := `SELECT ` + resumeColumns + ` FROM resumes ORDER BY created_at DESC`
	rows, err := r.Pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	defer rows.Close()
	var out []domain.Resume
	for rows.Next() {
		var res domain.Resume
		var profile []byte
		if err := rows.Scan(&res.ID, &res.Filename, &res.FileFormat, &res.MIME, &res.Size,
			&res.ContentHash, &res.Text, &profile, &res.ParsingMethod, &res.ChunkCount,
			&res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("op=resume.list: %w", err)
		}
		if len(profile) > 0 {
			if err := json.Unmarshal(profile, &res.Profile); err != nil {
				return nil, fmt.Errorf("op=resume.list: %w", err)
			}
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.list: %w", err)
	}
	return out, nil
}

// Delete removes a resume row by id.
func (r *ResumeRepo) Delete(ctx domain.Context, id string) error {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.Delete")
	defer span.End()
	tag, err := r.Pool.Exec(ctx, `DELETE FROM resumes WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("op=resume.delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("op=resume.delete: %w", domain.ErrNotFound)
	}
	return nil
}

// SetChunkCount records how many chunks are stored in the vector index.
func (r *ResumeRepo) SetChunkCount(ctx domain.Context, id string, n int) error {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.SetChunkCount")
	defer span.End()
	_, err := r.Pool.Exec(ctx, `UPDATE resumes SET chunk_count=$2, updated_at=$3 WHERE id=$1`, id, n, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("op=resume.set_chunk_count: %w", err)
	}
	return nil
}

// Count returns the total number of resumes.
func (r *ResumeRepo) Count(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.Count")
	defer span.End()
	var count int64
	if err := r.Pool.QueryRow(ctx, `SELECT COUNT(*) FROM resumes`).Scan(&count); err != nil {
		return 0, fmt.Errorf("op=resume.count: %w", err)
	}
	return count, nil
}

// SumChunkCounts returns the total number of indexed chunks across resumes.
func (r *ResumeRepo) SumChunkCounts(ctx domain.Context) (int64, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.SumChunkCounts")
	defer span.End()
	var total int64
	if err := r.Pool.QueryRow(ctx, `SELECT COALESCE(SUM(chunk_count),0) FROM resumes`).Scan(&total); err != nil {
		return 0, fmt.Errorf("op=resume.sum_chunks: %w", err)
	}
	return total, nil
}

// CountByFormat returns resume counts per file format.
func (r *ResumeRepo) CountByFormat(ctx domain.Context) (map[string]int64, error) {
	tracer := otel.Tracer("repo.resumes")
	ctx, span := tracer.Start(ctx, "resumes.CountByFormat")
	defer span.End()
	rows, err := r.Pool.Query(ctx, `SELECT file_format, COUNT(*) FROM resumes GROUP BY file_format`)
	if err != nil {
		return nil, fmt.Errorf("op=resume.count_by_format: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var format string
		var n int64
		if err := rows.Scan(&format, &n); err != nil {
			return nil, fmt.Errorf("op=resume.count_by_format: %w", err)
		}
		out[format] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("op=resume.count_by_format: %w", err)
	}
	return out, nil
}
