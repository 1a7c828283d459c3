// Package ingest implements the resume ingest pipeline: extraction, profile
// parsing, section-aware chunking, embedding and vector upsert.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"
)

// ContentHash returns the sha256 hex digest of the raw file bytes.
func ContentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// ResumeID derives the stable resume identifier from the filename and the
// content hash: "<basename>_<first 8 hex of sha256>". Identical content under
// the same name always maps to the same id, so re-uploads dedupe cleanly.
func ResumeID(filename, contentHash string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	base = sanitizeIDPart(base)
	if base == "" {
		base = "resume"
	}
	short := contentHash
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s_%s", base, short)
}

// PointID derives a deterministic UUID-shaped point id for one chunk so a
// forced re-ingest overwrites the prior point instead of duplicating it.
func PointID(resumeID string, chunkIndex int) string {
	h := sha256.Sum256([]byte(fmt.Sprintf("%s:%d", resumeID, chunkIndex)))
	hexs := hex.EncodeToString(h[:16])
	return fmt.Sprintf("%s-%s-%s-%s-%s", hexs[0:8], hexs[8:12], hexs[12:16], hexs[16:20], hexs[20:32])
}

func sanitizeIDPart(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r == ' ' || r == '.':
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}
