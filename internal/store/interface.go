package store

import (
	"context"
	"errors"

	"github.com/threadsign/ideas-bot/internal/models"
)

// ErrNotFound is returned when a required reference entity does not exist.
var ErrNotFound = errors.New("not found")

// Store defines the persistence contract for the pipeline.
type Store interface {
	// Reference lookups
	GetTopicByKey(ctx context.Context, key string) (*models.Topic, error)
	ListTopicsByIDs(ctx context.Context, ids []string) ([]models.Topic, error)
	GetFeedByName(ctx context.Context, name string) (*models.Feed, error)

	// Source items
	// InsertSourceItem conditionally inserts an item keyed on its external id.
	// It reports false when an item with the same external id already exists,
	// in which case nothing is written.
	InsertSourceItem(ctx context.Context, item *models.SourceItem) (bool, error)
	ListUnprocessedSourceItems(ctx context.Context, feedID string, limit int) ([]models.SourceItem, error)
	// ClaimSourceItem atomically marks an item processed. It reports false
	// when the item was already claimed, by this or a concurrent invocation.
	ClaimSourceItem(ctx context.Context, id string) (bool, error)

	// Ideas
	InsertIdea(ctx context.Context, idea *models.Idea) error
	ListIdeasByTopics(ctx context.Context, topicIDs []string, limit int) ([]models.Idea, error)

	// Subscriptions and deliveries
	ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error)
	GetUserEmail(ctx context.Context, userID string) (string, error)
	ListDeliveries(ctx context.Context, subscriptionID string) ([]models.Delivery, error)
	InsertDelivery(ctx context.Context, delivery *models.Delivery) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
