// Seed prepares a database for the pipeline: it runs migrations and creates
// the reference rows (topic and feed) the stages look up at runtime.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	st, err := store.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations applied")

	topic, err := st.EnsureTopic(ctx, cfg.TopicKey, topicLabel(cfg.TopicKey))
	if err != nil {
		log.Fatalf("Failed to seed topic: %v", err)
	}
	log.Printf("Topic ready: %s (%s)", topic.Label, topic.ID)

	feed, err := st.EnsureFeed(ctx, cfg.FeedName)
	if err != nil {
		log.Fatalf("Failed to seed feed: %v", err)
	}
	log.Printf("Feed ready: %s (%s)", feed.Name, feed.ID)
}

// topicLabel maps well-known topic keys to display labels.
func topicLabel(key string) string {
	labels := map[string]string{
		"devtools":  "Developer Tools",
		"saas":      "SaaS",
		"ecommerce": "E-commerce",
	}
	if label, ok := labels[key]; ok {
		return label
	}
	return key
}
