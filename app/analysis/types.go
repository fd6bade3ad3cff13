package analysis

// Section payloads produced by the analysis calls. Each is stored as a jsonb
// column on the summary row and filled in independently.

type Overview struct {
	Hook      string   `json:"hook"`
	KeyPoints []string `json:"key_points"`
	Audience  string   `json:"audience"`
}

type Triage struct {
	QualityScore   int    `json:"quality_score"`
	Clickbait      bool   `json:"clickbait"`
	Density        string `json:"density"`
	Assessment     string `json:"assessment"`
	Recommendation string `json:"recommendation"`
}

type Claim struct {
	Claim       string `json:"claim"`
	Verdict     string `json:"verdict"`
	Explanation string `json:"explanation"`
	Source      string `json:"source"`
}

type FactCheck struct {
	OverallReliability string  `json:"overall_reliability"`
	Claims             []Claim `json:"claims"`
}

type ActionItem struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Priority    string `json:"priority"`
}

type ActionItems struct {
	Items []ActionItem `json:"items"`
}

type tonePayload struct {
	Tone string `json:"tone"`
}

type topicsPayload struct {
	Queries []string `json:"queries"`
}

type tagsPayload struct {
	Tags []string `json:"tags"`
}
