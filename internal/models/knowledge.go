package models

// RetrievedChunk is one chunk returned by semantic retrieval. Rank is assigned
// only after re-ranking; before that it is zero.
type RetrievedChunk struct {
	Text     string            `json:"text"`
	Score    float64           `json:"score"`
	Metadata map[string]string `json:"metadata,omitempty"`
	Rank     int               `json:"rank"`
}

// EvaluationMetric is one scored dimension of a generated answer.
type EvaluationMetric struct {
	Name   string  `json:"name"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason,omitempty"`
}

// EvaluationReport scores a generated answer against its retrieved context.
// IsPassing is a gate callers may use to suppress low-confidence answers.
type EvaluationReport struct {
	Metrics      []EvaluationMetric `json:"metrics"`
	OverallScore float64            `json:"overall_score"`
	IsPassing    bool               `json:"is_passing"`
}

// Answer is the result of a knowledge question: the synthesized answer, the
// re-ranked context it was built from, and its self-evaluation.
type Answer struct {
	Answer     string            `json:"answer"`
	Context    []RetrievedChunk  `json:"context"`
	Evaluation *EvaluationReport `json:"evaluation"`
}
