package models

import (
	"math"
	"time"
)

// SourceItem is a raw content unit awaiting evaluation.
type SourceItem struct {
	ID           string     `json:"id"`
	ExternalID   string     `json:"external_id"` // dedup key, unique per item ever ingested
	FeedID       string     `json:"feed_id"`
	Title        string     `json:"title"`
	Body         string     `json:"body"`
	Permalink    string     `json:"permalink"`
	Score        int        `json:"score"` // raw upvote count, signal data only
	CommentCount int        `json:"comment_count"`
	CreatedAt    time.Time  `json:"created_at"`
	ProcessedAt  *time.Time `json:"processed_at"` // nil until claimed by evaluation
}

// ScoringBreakdown holds the four independent 0-100 criteria an idea is
// scored on. The overall idea score is always recomputed as the rounded
// mean of these four values.
type ScoringBreakdown struct {
	PainPointIntensity   int `json:"pain_point_intensity"`
	WillingnessToPay     int `json:"willingness_to_pay"`
	CompetitiveLandscape int `json:"competitive_landscape"`
	TAM                  int `json:"tam"`
}

// MeanScore returns the rounded arithmetic mean of the four criteria.
func (b ScoringBreakdown) MeanScore() int {
	sum := b.PainPointIntensity + b.WillingnessToPay + b.CompetitiveLandscape + b.TAM
	return int(math.Round(float64(sum) / 4.0))
}

// Idea is a persisted, quality-filtered insight derived from one SourceItem.
// Ideas are immutable once created.
type Idea struct {
	ID           string           `json:"id"`
	Title        string           `json:"title"`
	Pitch        string           `json:"pitch"`
	PainInsight  string           `json:"pain_insight"`
	Score        int              `json:"score"`
	Breakdown    ScoringBreakdown `json:"scoring_breakdown"`
	TopicID      string           `json:"topic_id"`
	SourceItemID string           `json:"source_item_id"`
	CreatedAt    time.Time        `json:"created_at"`
}

// Topic is a content category users can subscribe to.
type Topic struct {
	ID    string `json:"id"`
	Key   string `json:"key"`
	Label string `json:"label"`
}

// Feed is the source scope items are ingested from (e.g. "r/startups").
type Feed struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Subscription is a user's standing interest in a set of topics.
type Subscription struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	IsActive bool     `json:"is_active"`
	TopicIDs []string `json:"topic_ids"`
}

// Delivery records one digest send and the idea ids it contained. Rows are
// never updated or deleted; the union of IdeaIDs across a subscription's
// deliveries is the set of ideas that subscriber has already received.
type Delivery struct {
	ID             string    `json:"id"`
	SubscriptionID string    `json:"subscription_id"`
	SentAt         time.Time `json:"sent_at"`
	IdeaIDs        []string  `json:"ideas_included"`
	MessageID      string    `json:"message_id,omitempty"` // provider message id, may be empty
}

// GeneratedPost is a synthetic source item produced by the generator service.
type GeneratedPost struct {
	ExternalID   string `json:"reddit_post_id"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	Permalink    string `json:"permalink"`
	Score        int    `json:"score"`
	CommentCount int    `json:"num_comments"`
}

// CandidateIdea is the scoring service's evaluation of one source item.
// An empty Title means the item did not yield a usable idea.
type CandidateIdea struct {
	Title       string           `json:"title"`
	Pitch       string           `json:"pitch"`
	PainInsight string           `json:"pain_insight"`
	Score       int              `json:"score"` // service's own aggregate, not trusted
	Breakdown   ScoringBreakdown `json:"scoring_breakdown"`
}

// IngestResult reports one ingestion stage run.
type IngestResult struct {
	Success        bool   `json:"success"`
	PostsGenerated int    `json:"posts_generated"`
	PostsSkipped   int    `json:"posts_skipped"`
	Error          string `json:"error,omitempty"`
}

// EvaluateResult reports one scoring & filtering stage run.
type EvaluateResult struct {
	Success        bool     `json:"success"`
	PostsProcessed int      `json:"posts_processed"`
	IdeasGenerated int      `json:"ideas_generated"`
	Errors         []string `json:"errors,omitempty"`
	Error          string   `json:"error,omitempty"`
}

// DigestResult reports one delivery deduplication stage run.
type DigestResult struct {
	Success                bool     `json:"success"`
	SubscriptionsProcessed int      `json:"subscriptions_processed"`
	EmailsSent             int      `json:"emails_sent"`
	Errors                 []string `json:"errors,omitempty"`
	Error                  string   `json:"error,omitempty"`
}

// StageResults groups the three stage reports inside a pipeline report. The
// JSON keys are the monitoring contract and must not change.
type StageResults struct {
	Ingest   *IngestResult   `json:"step1_generate_posts"`
	Evaluate *EvaluateResult `json:"step2_generate_ideas"`
	Digests  *DigestResult   `json:"step3_send_emails"`
}

// PipelineReport is the orchestrator's aggregate result.
type PipelineReport struct {
	Success    bool         `json:"success"`
	Message    string       `json:"message"`
	DurationMS int64        `json:"duration_ms"`
	Results    StageResults `json:"results"`
}

// Digest is one outbound message: the new ideas for a subscriber plus the
// context needed to render and send it.
type Digest struct {
	Subscription Subscription
	Recipient    string
	TopicLabels  []string
	Ideas        []Idea
}
