package app

import (
	"context"
	"log/slog"

	qdrantcli "github.com/fairyhunter13/resume-rag/internal/adapter/vector/qdrant"
	"github.com/fairyhunter13/resume-rag/internal/config"
)

// EnsureCollections creates the resume collection and its payload indexes if
// they do not exist yet. Failures are logged, not fatal: the readiness probe
// keeps the instance out of rotation until Qdrant is reachable.
func EnsureCollections(ctx context.Context, cfg config.Config, qcli *qdrantcli.Client) {
	if qcli == nil {
		return
	}
	if err := qcli.EnsureCollection(ctx, cfg.EmbeddingsDim, "Cosine"); err != nil {
		slog.Warn("qdrant ensure collection failed",
			slog.String("collection", cfg.QdrantCollection),
			slog.Any("error", err))
	}
}
