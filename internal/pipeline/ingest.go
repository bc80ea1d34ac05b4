package pipeline

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/models"
)

// Ingest generates a batch of synthetic source posts for the configured feed
// and inserts the ones not seen before, deduplicated by external id. A
// failure on one attempt never aborts the rest of the batch.
func (s *Service) Ingest(ctx context.Context) *models.IngestResult {
	result := &models.IngestResult{}

	topic, err := s.store.GetTopicByKey(ctx, s.config.TopicKey)
	if err != nil {
		logrus.Errorf("Ingest aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	feed, err := s.store.GetFeedByName(ctx, s.config.FeedName)
	if err != nil {
		logrus.Errorf("Ingest aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	logrus.Infof("Ingesting up to %d posts for %s (%s)", s.config.IngestBatchSize, feed.Name, topic.Label)

	for i := 0; i < s.config.IngestBatchSize; i++ {
		post, err := s.generator.GeneratePost(ctx, feed.Name, topic.Label)
		if err != nil {
			logrus.Errorf("Failed to generate post %d/%d: %v", i+1, s.config.IngestBatchSize, err)
			continue
		}

		item := &models.SourceItem{
			ID:           uuid.New().String(),
			ExternalID:   post.ExternalID,
			FeedID:       feed.ID,
			Title:        post.Title,
			Body:         post.Body,
			Permalink:    post.Permalink,
			Score:        post.Score,
			CommentCount: post.CommentCount,
			CreatedAt:    time.Now().UTC(),
		}

		inserted, err := s.store.InsertSourceItem(ctx, item)
		if err != nil {
			logrus.Errorf("Failed to insert post %s: %v", post.ExternalID, err)
			continue
		}

		if inserted {
			result.PostsGenerated++
		} else {
			logrus.Debugf("Skipping duplicate post %s", post.ExternalID)
			result.PostsSkipped++
		}
	}

	result.Success = true
	logrus.Infof("Ingest completed: %d generated, %d skipped", result.PostsGenerated, result.PostsSkipped)
	return result
}
