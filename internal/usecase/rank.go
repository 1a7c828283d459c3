package usecase

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/fairyhunter13/resume-rag/internal/adapter/ai"
	"github.com/fairyhunter13/resume-rag/internal/adapter/observability"
	"github.com/fairyhunter13/resume-rag/internal/domain"
)

const rankSystemPrompt = `You are an expert technical recruiter evaluating how well one candidate fits a search query.
Respond with ONLY a valid JSON object, no markdown, no commentary:
{
  "relevance_score": <integer 1-10>,
  "fit_summary": "<2-3 sentence assessment>",
  "key_strengths": ["up to 3 strengths relevant to the query"],
  "potential_concerns": ["up to 2 gaps or concerns"]
}
Score guidelines: 9-10 exceptional match, 7-8 strong match, 5-6 good match with gaps, 3-4 moderate relevance, 1-2 weak match.`

const rankAnalysisMaxTokens = 500

// degradedFitSummary is recorded when the per-resume analysis call fails.
const degradedFitSummary = "Analysis incomplete: the language model could not assess this candidate."

// RankService produces ranked candidate lists for a query.
type RankService struct {
	AI         domain.AIClient
	Index      domain.VectorIndex
	Cache      domain.RankingCache
	RetrievalK int

	cleaner *ai.ResponseCleaner
}

// NewRankService wires the ranking dependencies. retrievalK bounds how many
// chunks are pulled per query before grouping by resume.
func NewRankService(aicl domain.AIClient, index domain.VectorIndex, cache domain.RankingCache, retrievalK int) RankService {
	if retrievalK <= 0 {
		retrievalK = 20
	}
	return RankService{AI: aicl, Index: index, Cache: cache, RetrievalK: retrievalK, cleaner: ai.NewResponseCleaner()}
}

// candidateGroup accumulates retrieval hits for one resume in first-seen order.
type candidateGroup struct {
	ranking domain.CandidateRanking
	context []string
	order   int
}

// Rank retrieves candidate chunks for the query, groups them by resume and
// scores each distinct resume once. Results are ordered by relevance score
// descending with retrieval order breaking ties, truncated to maxResumes.
// Repeated queries against an unchanged corpus are served from cache.
func (s RankService) Rank(ctx domain.Context, query string, maxResumes int) (domain.RankResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.RankResult{}, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidArgument)
	}
	if maxResumes <= 0 {
		maxResumes = domain.DefaultMaxResumes
	}
	if maxResumes > domain.MaxMaxResumes {
		maxResumes = domain.MaxMaxResumes
	}

	key, err := s.cacheKey(ctx, query, maxResumes)
	if err == nil {
		if cached, ok, cerr := s.Cache.GetRank(ctx, key); cerr == nil && ok {
			observability.RankCacheHit()
			return cached, nil
		}
		observability.RankCacheMiss()
	}

	groups, order, err := s.retrieve(ctx, query)
	if err != nil {
		return domain.RankResult{}, err
	}

	result := domain.RankResult{
		Query:      query,
		TotalFound: len(order),
		Candidates: make([]domain.CandidateRanking, 0, len(order)),
	}
	for _, resumeID := range order {
		g := groups[resumeID]
		result.Candidates = append(result.Candidates, s.scoreCandidate(ctx, query, g))
	}

	// Stable sort keeps first-seen retrieval order for equal scores.
	sort.SliceStable(result.Candidates, func(i, j int) bool {
		return result.Candidates[i].RelevanceScore > result.Candidates[j].RelevanceScore
	})
	if len(result.Candidates) > maxResumes {
		result.Candidates = result.Candidates[:maxResumes]
	}

	for _, c := range result.Candidates {
		observability.ObserveRelevanceScore(c.RelevanceScore)
	}
	if key != "" {
		if err := s.Cache.SetRank(ctx, key, result); err != nil {
			slog.Warn("rank cache store failed", slog.Any("error", err))
		}
	}
	return result, nil
}

// retrieve embeds the query, searches the index and groups hits by resume,
// preserving first-seen order.
func (s RankService) retrieve(ctx domain.Context, query string) (map[string]*candidateGroup, []string, error) {
	vecs, err := s.AI.Embed(ctx, []string{query})
	if err != nil {
		return nil, nil, fmt.Errorf("op=rank.embed_query: %w", err)
	}
	hits, err := s.Index.Search(ctx, vecs[0], s.RetrievalK, map[string]any{"content_type": "resume"})
	if err != nil {
		return nil, nil, fmt.Errorf("op=rank.search: %w", err)
	}

	groups := make(map[string]*candidateGroup)
	var order []string
	for _, hit := range hits {
		resumeID, _ := hit.Payload["resume_id"].(string)
		if resumeID == "" {
			continue
		}
		g, ok := groups[resumeID]
		if !ok {
			g = &candidateGroup{order: len(order)}
			g.ranking = domain.CandidateRanking{
				ResumeID:        resumeID,
				CandidateName:   str(hit.Payload["candidate_name"]),
				Filename:        str(hit.Payload["filename"]),
				FileFormat:      str(hit.Payload["file_format"]),
				ExperienceYears: intval(hit.Payload["experience_years"]),
				KeySkills:       str(hit.Payload["key_skills"]),
			}
			groups[resumeID] = g
			order = append(order, resumeID)
		}
		g.ranking.MatchingChunks++
		if text := str(hit.Payload["text"]); text != "" {
			g.context = append(g.context, text)
		}
	}
	return groups, order, nil
}

// scoreCandidate runs one fit-analysis call. Failures degrade to a neutral
// record rather than failing the whole ranking.
func (s RankService) scoreCandidate(ctx domain.Context, query string, g *candidateGroup) domain.CandidateRanking {
	r := g.ranking

	userPrompt := fmt.Sprintf("Search query: %s\n\nCandidate: %s\nKey skills: %s\nExperience: %d years\n\nMatching resume excerpts:\n%s",
		query, orUnknown(r.CandidateName), orUnknown(r.KeySkills), r.ExperienceYears,
		strings.Join(g.context, "\n---\n"))

	raw, err := s.AI.ChatJSON(ctx, rankSystemPrompt, userPrompt, rankAnalysisMaxTokens)
	if err != nil {
		slog.Warn("candidate analysis failed",
			slog.String("resume_id", r.ResumeID),
			slog.Any("error", err))
		return degradedRanking(r)
	}
	cleaned, err := s.cleaner.CleanJSON(raw)
	if err != nil {
		slog.Warn("candidate analysis not parseable", slog.String("resume_id", r.ResumeID))
		return degradedRanking(r)
	}

	var analysis struct {
		RelevanceScore    int      `json:"relevance_score"`
		FitSummary        string   `json:"fit_summary"`
		KeyStrengths      []string `json:"key_strengths"`
		PotentialConcerns []string `json:"potential_concerns"`
	}
	if err := json.Unmarshal([]byte(cleaned), &analysis); err != nil {
		slog.Warn("candidate analysis schema mismatch", slog.String("resume_id", r.ResumeID))
		return degradedRanking(r)
	}

	r.RelevanceScore = domain.ClampRelevanceScore(analysis.RelevanceScore)
	r.FitSummary = analysis.FitSummary
	r.KeyStrengths = capList(analysis.KeyStrengths, domain.MaxKeyStrengths)
	r.Concerns = capList(analysis.PotentialConcerns, domain.MaxConcerns)
	// The band mapping is authoritative; any label in the response is ignored.
	r.RecommendationLevel = domain.RecommendationForScore(r.RelevanceScore)
	return r
}

func degradedRanking(r domain.CandidateRanking) domain.CandidateRanking {
	r.RelevanceScore = 3
	r.FitSummary = degradedFitSummary
	r.KeyStrengths = nil
	r.Concerns = []string{"automated analysis unavailable"}
	r.RecommendationLevel = domain.RecommendationForScore(r.RelevanceScore)
	return r
}

// cacheKey mixes the corpus version into the key so every ingest or delete
// invalidates prior entries.
func (s RankService) cacheKey(ctx domain.Context, query string, maxResumes int) (string, error) {
	version, err := s.Cache.CorpusVersion(ctx)
	if err != nil {
		return "", err
	}
	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", query, maxResumes, version)))
	return hex.EncodeToString(h[:]), nil
}

func capList(in []string, n int) []string {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return "unknown"
	}
	return s
}

func str(v any) string {
	s, _ := v.(string)
	return s
}

func intval(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
