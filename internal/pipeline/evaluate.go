package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/models"
)

// Evaluate scores a batch of unprocessed source items and persists the ones
// that clear the quality bar as ideas.
//
// Each item is claimed with an atomic conditional update before it is scored,
// so overlapping invocations never evaluate the same item twice. Claiming
// also marks the item processed up front: an item whose scoring call fails is
// not retried, trading possible loss on transient failures for guaranteed
// drain of the backlog. One bad item never blocks the batch.
func (s *Service) Evaluate(ctx context.Context) *models.EvaluateResult {
	result := &models.EvaluateResult{}

	feed, err := s.store.GetFeedByName(ctx, s.config.FeedName)
	if err != nil {
		logrus.Errorf("Evaluate aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	topic, err := s.store.GetTopicByKey(ctx, s.config.TopicKey)
	if err != nil {
		logrus.Errorf("Evaluate aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	items, err := s.store.ListUnprocessedSourceItems(ctx, feed.ID, s.config.EvaluateBatchSize)
	if err != nil {
		logrus.Errorf("Evaluate aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	logrus.Infof("Evaluating %d unprocessed posts from %s", len(items), feed.Name)

	for _, item := range items {
		claimed, err := s.store.ClaimSourceItem(ctx, item.ID)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to claim post %s: %v", item.ID, err))
			continue
		}
		if !claimed {
			logrus.Debugf("Post %s already claimed by a concurrent run", item.ID)
			continue
		}

		result.PostsProcessed++

		candidate, err := s.scorer.ScoreItem(ctx, &item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("error processing post %s: %v", item.ID, err))
			continue
		}

		if candidate.Title == "" {
			logrus.Debugf("Post %s yielded no idea", item.ID)
			continue
		}

		// The score is recomputed from the breakdown rather than taken from
		// the service's own aggregate, which may round differently.
		score := candidate.Breakdown.MeanScore()
		if score < MinIdeaScore {
			logrus.Debugf("Post %s scored %d, below threshold", item.ID, score)
			continue
		}

		idea := &models.Idea{
			ID:           uuid.New().String(),
			Title:        candidate.Title,
			Pitch:        candidate.Pitch,
			PainInsight:  candidate.PainInsight,
			Score:        score,
			Breakdown:    candidate.Breakdown,
			TopicID:      topic.ID,
			SourceItemID: item.ID,
			CreatedAt:    time.Now().UTC(),
		}

		if err := s.store.InsertIdea(ctx, idea); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("failed to insert idea for post %s: %v", item.ID, err))
			continue
		}

		result.IdeasGenerated++
		logrus.Infof("Created idea %q (score %d) from post %s", idea.Title, idea.Score, item.ID)
	}

	result.Success = true
	logrus.Infof("Evaluate completed: %d processed, %d ideas, %d errors",
		result.PostsProcessed, result.IdeasGenerated, len(result.Errors))
	return result
}
