package domain

// Recommendation levels derived from the relevance score band.
const (
	RecommendationExceptional = "Exceptional"
	RecommendationStrong      = "Strong"
	RecommendationGood        = "Good"
	RecommendationModerate    = "Moderate"
	RecommendationWeak        = "Weak"
)

// Limits applied to ranking records.
const (
	MaxKeyStrengths = 3
	MaxConcerns     = 2

	MinRelevanceScore = 1
	MaxRelevanceScore = 10

	DefaultMaxResumes = 5
	MaxMaxResumes     = 10
)

// CandidateRanking is one scored judgment for a distinct resume. At most one
// record exists per resume regardless of how many chunks matched the query.
type CandidateRanking struct {
	ResumeID            string   `json:"resume_id"`
	CandidateName       string   `json:"candidate_name"`
	Filename            string   `json:"filename"`
	FileFormat          string   `json:"file_format"`
	RelevanceScore      int      `json:"relevance_score"`
	FitSummary          string   `json:"fit_summary"`
	KeyStrengths        []string `json:"key_strengths"`
	Concerns            []string `json:"concerns"`
	RecommendationLevel string   `json:"recommendation_level"`
	ExperienceYears     int      `json:"experience_years"`
	KeySkills           string   `json:"key_skills"`
	MatchingChunks      int      `json:"matching_chunks"`
}

// RankResult is the ordered, truncated ranking for one query.
type RankResult struct {
	Query      string             `json:"query"`
	TotalFound int                `json:"total_found"`
	Candidates []CandidateRanking `json:"ranked_resumes"`
}

// ClampRelevanceScore forces a score into the [1,10] contract range.
func ClampRelevanceScore(s int) int {
	if s < MinRelevanceScore {
		return MinRelevanceScore
	}
	if s > MaxRelevanceScore {
		return MaxRelevanceScore
	}
	return s
}

// RecommendationForScore derives the categorical level from the score band.
// The mapping is deterministic: 9-10 Exceptional, 7-8 Strong, 5-6 Good,
// 3-4 Moderate, 1-2 Weak.
func RecommendationForScore(score int) string {
	switch {
	case score >= 9:
		return RecommendationExceptional
	case score >= 7:
		return RecommendationStrong
	case score >= 5:
		return RecommendationGood
	case score >= 3:
		return RecommendationModerate
	default:
		return RecommendationWeak
	}
}

// RankingCache (port) caches full rank results keyed by query+corpus version
// so repeated queries against an unchanged corpus return identical output.
type RankingCache interface {
	GetRank(ctx Context, key string) (RankResult, bool, error)
	SetRank(ctx Context, key string, r RankResult) error
	// CorpusVersion returns a token that changes whenever the corpus does.
	CorpusVersion(ctx Context) (string, error)
	// BumpCorpusVersion invalidates all cached rankings.
	BumpCorpusVersion(ctx Context) error
}
