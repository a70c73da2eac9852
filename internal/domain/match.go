package domain

// Proposal is a set of links suggested for one canonical category.
type Proposal struct {
	CanonicalID CategoryID   `json:"canonical_id"`
	SourceAIDs  []CategoryID `json:"sourceA_ids"`
	SourceBIDs  []CategoryID `json:"sourceB_ids"`
}

// MatchStats summarizes a matching run. It is reported while the run is in
// progress and once more in the final result.
type MatchStats struct {
	TotalProcessed       int     `json:"total_processed"`
	MappedCount          int     `json:"mapped_count"`
	ExactMatchCount      int     `json:"exact_match_count"`
	AvgSimilarityPercent int     `json:"avg_similarity_percent"`
	SimilaritySum        float64 `json:"similarity_sum"`
}

// MatchResult is the output of one matching run.
type MatchResult struct {
	Proposals []Proposal `json:"proposals"`
	Stats     MatchStats `json:"stats"`
	ElapsedMs int64      `json:"elapsed_ms"`
}

// MatchProgressStatus marks where a matching run currently is.
type MatchProgressStatus string

// Progress statuses emitted by the matching engine.
const (
	ProgressStart    MatchProgressStatus = "start"
	ProgressSourceA  MatchProgressStatus = "source_a"
	ProgressSourceB  MatchProgressStatus = "source_b"
	ProgressResidual MatchProgressStatus = "residual"
	ProgressComplete MatchProgressStatus = "complete"
)

// MatchProgress is an observational progress report from a matching run.
type MatchProgress struct {
	Status  MatchProgressStatus `json:"status"`
	Message string              `json:"message"`
	Percent int                 `json:"percent"`
	Stats   MatchStats          `json:"stats"`
}
