package qdrant_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/resume-rag/internal/adapter/vector/qdrant"
)

func TestClient_EnsureCollection(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		vectorSize int
		distance   string
		handler    http.HandlerFunc
		wantErr    bool
	}{
		{
			name:       "collection already exists",
			vectorSize: 1536,
			distance:   "Cosine",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					w.WriteHeader(http.StatusOK)
					require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
				}
			},
			wantErr: false,
		},
		{
			name:       "create new collection and indexes",
			vectorSize: 768,
			distance:   "Dot",
			handler: func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodGet {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				if strings.HasSuffix(r.URL.Path, "/index") {
					var payload map[string]any
					require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
					assert.Equal(t, "keyword", payload["field_schema"])
					w.WriteHeader(http.StatusOK)
					require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
					return
				}
				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

				vectors := payload["vectors"].(map[string]any)
				assert.Equal(t, float64(768), vectors["size"])
				assert.Equal(t, "Dot", vectors["distance"])

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
			},
			wantErr: false,
		},
		{
			name:       "server error",
			vectorSize: 1536,
			distance:   "Cosine",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := qdrant.New(server.URL, "test-api-key", "resumes")
			ctx := context.Background()

			err := client.EnsureCollection(ctx, tt.vectorSize, tt.distance)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClient_UpsertChunks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		vectors  [][]float32
		payloads []map[string]any
		ids      []string
		handler  http.HandlerFunc
		wantErr  bool
	}{
		{
			name:     "successful upsert",
			vectors:  [][]float32{{0.1, 0.2, 0.3}},
			payloads: []map[string]any{{"text": "chunk text", "resume_id": "alice_ab12cd34"}},
			ids:      []string{uuid.New().String()},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPut, r.Method)
				assert.Contains(t, r.URL.Path, "/collections/resumes/points")

				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

				points := payload["points"].([]any)
				assert.Len(t, points, 1)
				pt := points[0].(map[string]any)
				assert.NotEmpty(t, pt["id"])

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
			},
			wantErr: false,
		},
		{
			name:     "multiple points",
			vectors:  [][]float32{{0.1}, {0.2}, {0.3}},
			payloads: []map[string]any{{"idx": 1}, {"idx": 2}, {"idx": 3}},
			ids:      []string{"1", "2", "3"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

				points := payload["points"].([]any)
				assert.Len(t, points, 3)

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
			},
			wantErr: false,
		},
		{
			name:     "length mismatch",
			vectors:  [][]float32{{0.1}, {0.2}},
			payloads: []map[string]any{{"idx": 1}},
			ids:      []string{"1"},
			handler:  func(_ http.ResponseWriter, _ *http.Request) {},
			wantErr:  true,
		},
		{
			name:     "server error",
			vectors:  [][]float32{{0.1}},
			payloads: []map[string]any{{"test": "data"}},
			ids:      []string{"1"},
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"error": "bad request"}))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := qdrant.New(server.URL, "test-api-key", "resumes")
			ctx := context.Background()

			err := client.UpsertChunks(ctx, tt.vectors, tt.payloads, tt.ids)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

func TestClient_Search(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		vector    []float32
		limit     int
		filter    map[string]any
		handler   http.HandlerFunc
		wantCount int
		wantErr   bool
	}{
		{
			name:   "successful search with filter",
			vector: []float32{0.1, 0.2, 0.3},
			limit:  5,
			filter: map[string]any{"content_type": "resume"},
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Contains(t, r.URL.Path, "/collections/resumes/points/search")

				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

				assert.Equal(t, float64(5), payload["limit"])
				assert.NotNil(t, payload["vector"])
				assert.Equal(t, true, payload["with_payload"])

				filter := payload["filter"].(map[string]any)
				must := filter["must"].([]any)
				assert.Len(t, must, 1)

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
					"result": []map[string]any{
						{
							"id":      "match-1",
							"score":   0.95,
							"payload": map[string]any{"text": "best match", "resume_id": "a_1"},
						},
						{
							"id":      "match-2",
							"score":   0.85,
							"payload": map[string]any{"text": "good match", "resume_id": "b_2"},
						},
					},
				}))
			},
			wantCount: 2,
			wantErr:   false,
		},
		{
			name:   "empty results without filter",
			vector: []float32{0.1},
			limit:  10,
			handler: func(w http.ResponseWriter, r *http.Request) {
				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				_, hasFilter := payload["filter"]
				assert.False(t, hasFilter)

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{
					"result": []map[string]any{},
				}))
			},
			wantCount: 0,
			wantErr:   false,
		},
		{
			name:   "server error",
			vector: []float32{0.1},
			limit:  3,
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := qdrant.New(server.URL, "test-api-key", "resumes")
			ctx := context.Background()

			results, err := client.Search(ctx, tt.vector, tt.limit, tt.filter)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				assert.Len(t, results, tt.wantCount)
				for _, hit := range results {
					assert.GreaterOrEqual(t, hit.Score, 0.0)
					assert.NotNil(t, hit.Payload)
				}
			}
		})
	}
}

func TestClient_DeleteByResumeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "successful delete",
			handler: func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, http.MethodPost, r.Method)
				assert.Contains(t, r.URL.Path, "/points/delete")

				var payload map[string]any
				require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
				filter := payload["filter"].(map[string]any)
				must := filter["must"].([]any)
				cond := must[0].(map[string]any)
				assert.Equal(t, "resume_id", cond["key"])

				w.WriteHeader(http.StatusOK)
				require.NoError(t, json.NewEncoder(w).Encode(map[string]any{"result": "ok"}))
			},
			wantErr: false,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusInternalServerError)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := qdrant.New(server.URL, "test-api-key", "resumes")

			err := client.DeleteByResumeID(context.Background(), "alice_ab12cd34")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestClient_Healthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr bool
	}{
		{
			name: "healthy",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			},
			wantErr: false,
		},
		{
			name: "unhealthy",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(tt.handler)
			defer server.Close()

			client := qdrant.New(server.URL, "test-api-key", "resumes")

			err := client.Healthz(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
