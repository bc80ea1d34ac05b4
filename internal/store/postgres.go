package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/threadsign/ideas-bot/internal/models"
)

// Pool is the subset of pgxpool.Pool used by the store. pgxmock satisfies it
// for unit tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using a pgx connection pool.
type PostgresStore struct {
	pool Pool
}

// Ensure PostgresStore implements Store
var _ Store = (*PostgresStore)(nil)

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	cfg.MaxConns = 10
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

const migration = `
CREATE TABLE IF NOT EXISTS topics (
	id    TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	key   TEXT NOT NULL UNIQUE,
	label TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feeds (
	id   TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS source_items (
	id            TEXT PRIMARY KEY,
	external_id   TEXT NOT NULL UNIQUE,
	feed_id       TEXT NOT NULL REFERENCES feeds(id),
	title         TEXT NOT NULL,
	body          TEXT NOT NULL DEFAULT '',
	permalink     TEXT NOT NULL DEFAULT '',
	score         INTEGER NOT NULL DEFAULT 0,
	comment_count INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	processed_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_source_items_unprocessed ON source_items(feed_id, created_at) WHERE processed_at IS NULL;

CREATE TABLE IF NOT EXISTS ideas (
	id                    TEXT PRIMARY KEY,
	title                 TEXT NOT NULL,
	pitch                 TEXT NOT NULL DEFAULT '',
	pain_insight          TEXT NOT NULL DEFAULT '',
	score                 INTEGER NOT NULL,
	pain_point_intensity  INTEGER NOT NULL,
	willingness_to_pay    INTEGER NOT NULL,
	competitive_landscape INTEGER NOT NULL,
	tam                   INTEGER NOT NULL,
	topic_id              TEXT NOT NULL REFERENCES topics(id),
	source_item_id        TEXT NOT NULL UNIQUE REFERENCES source_items(id),
	created_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_ideas_topic_created ON ideas(topic_id, created_at DESC);

CREATE TABLE IF NOT EXISTS profiles (
	id    TEXT PRIMARY KEY,
	email TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS subscriptions (
	id        TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id   TEXT NOT NULL REFERENCES profiles(id),
	is_active BOOLEAN NOT NULL DEFAULT false
);

CREATE TABLE IF NOT EXISTS subscription_topics (
	subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
	topic_id        TEXT NOT NULL REFERENCES topics(id),
	PRIMARY KEY (subscription_id, topic_id)
);

CREATE TABLE IF NOT EXISTS deliveries (
	id              TEXT PRIMARY KEY,
	subscription_id TEXT NOT NULL REFERENCES subscriptions(id),
	sent_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	idea_ids        TEXT[] NOT NULL,
	message_id      TEXT
);

CREATE INDEX IF NOT EXISTS idx_deliveries_subscription ON deliveries(subscription_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, migration); err != nil {
		return fmt.Errorf("failed to run migration: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// EnsureTopic inserts the topic if missing and returns the stored row.
// Used by the seed utility; the pipeline itself never creates topics.
func (s *PostgresStore) EnsureTopic(ctx context.Context, key, label string) (*models.Topic, error) {
	var t models.Topic
	err := s.pool.QueryRow(ctx,
		`INSERT INTO topics (id, key, label) VALUES (gen_random_uuid()::text, $1, $2)
		 ON CONFLICT (key) DO UPDATE SET label = EXCLUDED.label
		 RETURNING id, key, label`,
		key, label,
	).Scan(&t.ID, &t.Key, &t.Label)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure topic %q: %w", key, err)
	}
	return &t, nil
}

// EnsureFeed inserts the feed if missing and returns the stored row.
func (s *PostgresStore) EnsureFeed(ctx context.Context, name string) (*models.Feed, error) {
	var f models.Feed
	err := s.pool.QueryRow(ctx,
		`INSERT INTO feeds (id, name) VALUES (gen_random_uuid()::text, $1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name`,
		name,
	).Scan(&f.ID, &f.Name)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure feed %q: %w", name, err)
	}
	return &f, nil
}

func (s *PostgresStore) GetTopicByKey(ctx context.Context, key string) (*models.Topic, error) {
	var t models.Topic
	err := s.pool.QueryRow(ctx,
		`SELECT id, key, label FROM topics WHERE key = $1`, key,
	).Scan(&t.ID, &t.Key, &t.Label)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("topic %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get topic %q: %w", key, err)
	}
	return &t, nil
}

func (s *PostgresStore) ListTopicsByIDs(ctx context.Context, ids []string) ([]models.Topic, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, key, label FROM topics WHERE id = ANY($1) ORDER BY label`, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list topics: %w", err)
	}
	defer rows.Close()

	var topics []models.Topic
	for rows.Next() {
		var t models.Topic
		if err := rows.Scan(&t.ID, &t.Key, &t.Label); err != nil {
			return nil, fmt.Errorf("failed to scan topic: %w", err)
		}
		topics = append(topics, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read topics: %w", err)
	}
	return topics, nil
}

func (s *PostgresStore) GetFeedByName(ctx context.Context, name string) (*models.Feed, error) {
	var f models.Feed
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM feeds WHERE name = $1`, name,
	).Scan(&f.ID, &f.Name)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("feed %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get feed %q: %w", name, err)
	}
	return &f, nil
}

func (s *PostgresStore) InsertSourceItem(ctx context.Context, item *models.SourceItem) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO source_items (id, external_id, feed_id, title, body, permalink, score, comment_count, created_at, processed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULL)
		 ON CONFLICT (external_id) DO NOTHING`,
		item.ID, item.ExternalID, item.FeedID, item.Title, item.Body,
		item.Permalink, item.Score, item.CommentCount, item.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("failed to insert source item %s: %w", item.ExternalID, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ListUnprocessedSourceItems(ctx context.Context, feedID string, limit int) ([]models.SourceItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, external_id, feed_id, title, body, permalink, score, comment_count, created_at, processed_at
		 FROM source_items
		 WHERE feed_id = $1 AND processed_at IS NULL
		 ORDER BY created_at
		 LIMIT $2`,
		feedID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list unprocessed source items: %w", err)
	}
	defer rows.Close()

	var items []models.SourceItem
	for rows.Next() {
		var it models.SourceItem
		if err := rows.Scan(&it.ID, &it.ExternalID, &it.FeedID, &it.Title, &it.Body,
			&it.Permalink, &it.Score, &it.CommentCount, &it.CreatedAt, &it.ProcessedAt); err != nil {
			return nil, fmt.Errorf("failed to scan source item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read source items: %w", err)
	}
	return items, nil
}

// ClaimSourceItem is the claim step that makes overlapping invocations safe:
// only the caller whose update affected the row owns the item.
func (s *PostgresStore) ClaimSourceItem(ctx context.Context, id string) (bool, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE source_items SET processed_at = now() WHERE id = $1 AND processed_at IS NULL`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("failed to claim source item %s: %w", id, err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) InsertIdea(ctx context.Context, idea *models.Idea) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO ideas (id, title, pitch, pain_insight, score, pain_point_intensity, willingness_to_pay, competitive_landscape, tam, topic_id, source_item_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		idea.ID, idea.Title, idea.Pitch, idea.PainInsight, idea.Score,
		idea.Breakdown.PainPointIntensity, idea.Breakdown.WillingnessToPay,
		idea.Breakdown.CompetitiveLandscape, idea.Breakdown.TAM,
		idea.TopicID, idea.SourceItemID, idea.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert idea for item %s: %w", idea.SourceItemID, err)
	}
	return nil
}

func (s *PostgresStore) ListIdeasByTopics(ctx context.Context, topicIDs []string, limit int) ([]models.Idea, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, title, pitch, pain_insight, score, pain_point_intensity, willingness_to_pay, competitive_landscape, tam, topic_id, source_item_id, created_at
		 FROM ideas
		 WHERE topic_id = ANY($1)
		 ORDER BY created_at DESC
		 LIMIT $2`,
		topicIDs, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list ideas: %w", err)
	}
	defer rows.Close()

	var ideas []models.Idea
	for rows.Next() {
		var i models.Idea
		if err := rows.Scan(&i.ID, &i.Title, &i.Pitch, &i.PainInsight, &i.Score,
			&i.Breakdown.PainPointIntensity, &i.Breakdown.WillingnessToPay,
			&i.Breakdown.CompetitiveLandscape, &i.Breakdown.TAM,
			&i.TopicID, &i.SourceItemID, &i.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan idea: %w", err)
		}
		ideas = append(ideas, i)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ideas: %w", err)
	}
	return ideas, nil
}

func (s *PostgresStore) ListActiveSubscriptions(ctx context.Context) ([]models.Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT s.id, s.user_id, s.is_active,
		        COALESCE(array_agg(st.topic_id) FILTER (WHERE st.topic_id IS NOT NULL), '{}')
		 FROM subscriptions s
		 LEFT JOIN subscription_topics st ON st.subscription_id = s.id
		 WHERE s.is_active
		 GROUP BY s.id, s.user_id, s.is_active
		 ORDER BY s.id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		var sub models.Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.IsActive, &sub.TopicIDs); err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read subscriptions: %w", err)
	}
	return subs, nil
}

// GetUserEmail returns an empty string, not an error, when the profile is
// missing or has no address; the delivery stage treats both as "no contact".
func (s *PostgresStore) GetUserEmail(ctx context.Context, userID string) (string, error) {
	var email string
	err := s.pool.QueryRow(ctx,
		`SELECT email FROM profiles WHERE id = $1`, userID,
	).Scan(&email)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get email for user %s: %w", userID, err)
	}
	return email, nil
}

func (s *PostgresStore) ListDeliveries(ctx context.Context, subscriptionID string) ([]models.Delivery, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, subscription_id, sent_at, idea_ids, COALESCE(message_id, '')
		 FROM deliveries
		 WHERE subscription_id = $1`,
		subscriptionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list deliveries for subscription %s: %w", subscriptionID, err)
	}
	defer rows.Close()

	var deliveries []models.Delivery
	for rows.Next() {
		var d models.Delivery
		if err := rows.Scan(&d.ID, &d.SubscriptionID, &d.SentAt, &d.IdeaIDs, &d.MessageID); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read deliveries: %w", err)
	}
	return deliveries, nil
}

func (s *PostgresStore) InsertDelivery(ctx context.Context, delivery *models.Delivery) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO deliveries (id, subscription_id, sent_at, idea_ids, message_id)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
		delivery.ID, delivery.SubscriptionID, delivery.SentAt, delivery.IdeaIDs, delivery.MessageID,
	)
	if err != nil {
		return fmt.Errorf("failed to insert delivery for subscription %s: %w", delivery.SubscriptionID, err)
	}
	return nil
}
