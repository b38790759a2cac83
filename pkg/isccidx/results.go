package isccidx

// IsccMatch is one ranked result from Query's ISCC-match list.
type IsccMatch struct {
	Key         Key
	MatchedISCC string
	Distance    int
	MDist       *int
	CDist       *int
	DDist       *int
	IMatch      *bool
}

// FeatureMatch is one ranked result from Query's feature-match list.
type FeatureMatch struct {
	MatchedISCC     string
	Kind            string
	SourceFeature   string
	SourcePos       any
	MatchedFeature  string
	MatchedPosition any
	Distance        int
}

// QueryResult is the two ordered result lists Query returns.
type QueryResult struct {
	IsccMatches    []IsccMatch
	FeatureMatches []FeatureMatch
}

// Stats is the per-sub-store entry count mapping stats() returns.
type Stats = map[string]int64
