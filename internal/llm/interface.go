package llm

import (
	"context"

	"github.com/threadsign/ideas-bot/internal/models"
)

// Generator produces synthetic source posts for a feed.
type Generator interface {
	GeneratePost(ctx context.Context, feedName, topicLabel string) (*models.GeneratedPost, error)
}

// Scorer evaluates a source item and returns a candidate idea with a
// four-criteria scoring breakdown. A candidate with an empty title means the
// item did not yield a usable idea.
type Scorer interface {
	ScoreItem(ctx context.Context, item *models.SourceItem) (*models.CandidateIdea, error)
}
