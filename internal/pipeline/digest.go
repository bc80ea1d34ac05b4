package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/models"
)

// SendDigests sends each active subscriber a digest of ideas matching their
// topics that they have not received before. The set of already-sent ideas is
// the union of idea ids across the subscription's past deliveries; a delivery
// row is written only after a successful send, so a failed send leaves its
// ideas eligible for the next run (at-least-once, never at-most-once).
func (s *Service) SendDigests(ctx context.Context) *models.DigestResult {
	result := &models.DigestResult{}

	subscriptions, err := s.store.ListActiveSubscriptions(ctx)
	if err != nil {
		logrus.Errorf("Digest run aborted: %v", err)
		result.Error = err.Error()
		return result
	}

	result.SubscriptionsProcessed = len(subscriptions)
	logrus.Infof("Processing %d active subscriptions", len(subscriptions))

	for _, sub := range subscriptions {
		if err := s.sendDigestFor(ctx, sub, result); err != nil {
			result.Errors = append(result.Errors, err.Error())
		}
	}

	result.Success = true
	logrus.Infof("Digest run completed: %d subscriptions, %d emails sent, %d errors",
		result.SubscriptionsProcessed, result.EmailsSent, len(result.Errors))
	return result
}

// sendDigestFor handles one subscription. A nil return with no email sent is
// the normal "nothing new" case.
func (s *Service) sendDigestFor(ctx context.Context, sub models.Subscription, result *models.DigestResult) error {
	// Inactive or topicless subscriptions gate nothing and are skipped
	// without touching the store.
	if !sub.IsActive || len(sub.TopicIDs) == 0 {
		logrus.Debugf("Skipping subscription %s: no topics", sub.ID)
		return nil
	}

	email, err := s.store.GetUserEmail(ctx, sub.UserID)
	if err != nil {
		return fmt.Errorf("failed to resolve email for subscription %s: %w", sub.ID, err)
	}
	if email == "" {
		return fmt.Errorf("no email found for subscription %s", sub.ID)
	}

	deliveries, err := s.store.ListDeliveries(ctx, sub.ID)
	if err != nil {
		return fmt.Errorf("failed to fetch past deliveries for subscription %s: %w", sub.ID, err)
	}

	alreadySent := make(map[string]bool)
	for _, d := range deliveries {
		for _, id := range d.IdeaIDs {
			alreadySent[id] = true
		}
	}

	candidates, err := s.store.ListIdeasByTopics(ctx, sub.TopicIDs, s.config.DigestMaxIdeas)
	if err != nil {
		return fmt.Errorf("failed to fetch ideas for subscription %s: %w", sub.ID, err)
	}

	var newIdeas []models.Idea
	for _, idea := range candidates {
		if !alreadySent[idea.ID] {
			newIdeas = append(newIdeas, idea)
		}
	}

	if len(newIdeas) == 0 {
		logrus.Debugf("No new ideas for subscription %s", sub.ID)
		return nil
	}

	topics, err := s.store.ListTopicsByIDs(ctx, sub.TopicIDs)
	if err != nil {
		return fmt.Errorf("failed to resolve topics for subscription %s: %w", sub.ID, err)
	}
	labels := make([]string, len(topics))
	for i, t := range topics {
		labels[i] = t.Label
	}

	digest := &models.Digest{
		Subscription: sub,
		Recipient:    email,
		TopicLabels:  labels,
		Ideas:        newIdeas,
	}

	messageID, err := s.sender.SendDigest(ctx, digest)
	if err != nil {
		// No delivery row on send failure: the same ideas stay eligible and
		// will be retried on the next run.
		return fmt.Errorf("failed to send email for subscription %s: %w", sub.ID, err)
	}

	ideaIDs := make([]string, len(newIdeas))
	for i, idea := range newIdeas {
		ideaIDs[i] = idea.ID
	}

	delivery := &models.Delivery{
		ID:             uuid.New().String(),
		SubscriptionID: sub.ID,
		SentAt:         time.Now().UTC(),
		IdeaIDs:        ideaIDs,
		MessageID:      messageID,
	}

	if err := s.store.InsertDelivery(ctx, delivery); err != nil {
		// The send went out but the record is lost; the deterministic
		// message id makes the inevitable resend dedupable downstream.
		return fmt.Errorf("failed to record delivery for subscription %s: %w", sub.ID, err)
	}

	result.EmailsSent++
	logrus.Infof("Sent digest with %d ideas to subscription %s", len(newIdeas), sub.ID)
	return nil
}
