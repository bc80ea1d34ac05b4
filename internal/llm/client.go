package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"github.com/threadsign/ideas-bot/internal/models"
)

// Client talks to an OpenAI-compatible chat completions API and implements
// both the generator and scorer collaborators.
type Client struct {
	baseURL string
	apiKey  string
	model   string
	client  *resty.Client
}

// Ensure Client implements both collaborator interfaces
var (
	_ Generator = (*Client)(nil)
	_ Scorer    = (*Client)(nil)
)

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
	Temperature    float64         `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new LLM client
func NewClient(baseURL, apiKey, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  resty.New().SetTimeout(60 * time.Second),
	}
}

const generateSystemPrompt = `You are generating realistic Reddit discussion posts for a subreddit about %s.
Generate a post that describes a real-world problem, frustration, or need that someone might post about.
The post should be authentic, detailed, and show genuine pain points that could inspire product ideas.
Include realistic metadata (upvote score, comment count) for authenticity only - this is raw signal data.`

const generateUserPrompt = `Generate a Reddit post for %s about %s.
Include:
- A compelling title
- A detailed post body (2-4 paragraphs) describing a problem, frustration, or need
- Make it realistic and authentic
- Format the response as JSON with: title, body, score (integer 1-100, realistic upvote count), num_comments (integer 1-50, realistic comment count), permalink (e.g., "/r/startups/comments/abc123/"), reddit_post_id (random alphanumeric string)`

// GeneratePost asks the LLM for one synthetic source post.
func (c *Client) GeneratePost(ctx context.Context, feedName, topicLabel string) (*models.GeneratedPost, error) {
	content, err := c.complete(ctx, 0.8,
		fmt.Sprintf(generateSystemPrompt, topicLabel),
		fmt.Sprintf(generateUserPrompt, feedName, topicLabel),
	)
	if err != nil {
		return nil, fmt.Errorf("generate post: %w", err)
	}

	var post models.GeneratedPost
	if err := json.Unmarshal([]byte(content), &post); err != nil {
		return nil, fmt.Errorf("generate post: malformed response: %w", err)
	}
	if post.ExternalID == "" || post.Title == "" {
		return nil, fmt.Errorf("generate post: response missing reddit_post_id or title")
	}

	return &post, nil
}

const scoreSystemPrompt = `You are a product strategist analyzing Reddit discussions to identify valuable product opportunities.
Analyze the pain points described in Reddit posts and generate concise product ideas.

For each idea, provide:
1. A short, compelling product title
2. A 1-2 sentence pitch describing the product
3. A key pain insight extracted from the discussion
4. A viability score from 0-100 based on four criteria (each scored 0-100 independently):
   - Pain point intensity (0-100): How severe and urgent is the problem?
   - Willingness to pay (0-100): How likely are users to pay for a solution?
   - Competitive landscape (0-100): How crowded is the market? (Higher = less crowded, better opportunity)
   - TAM (Total Addressable Market) (0-100): How large is the potential market?

The final score is the simple average of all four criteria (sum / 4).
Only generate ideas where the average score is 60 or above.`

const scoreUserPrompt = `Analyze this Reddit post:

Title: %s

Body: %s

Generate a product idea in JSON format with:
{
  "title": "Product name",
  "pitch": "1-2 sentence description",
  "pain_insight": "Key pain point extracted",
  "score": average_score_0_100,
  "scoring_breakdown": {
    "pain_point_intensity": 0-100,
    "willingness_to_pay": 0-100,
    "competitive_landscape": 0-100,
    "tam": 0-100
  }
}

Each criterion should be scored independently from 0-100.
Only return the idea if the average score is 60 or above. If the score would be below 60, return null.`

// ScoreItem asks the LLM to evaluate one source item. A nil-equivalent
// response (JSON null or no title) is returned as a candidate with an empty
// title, not as an error.
func (c *Client) ScoreItem(ctx context.Context, item *models.SourceItem) (*models.CandidateIdea, error) {
	content, err := c.complete(ctx, 0.7,
		scoreSystemPrompt,
		fmt.Sprintf(scoreUserPrompt, item.Title, item.Body),
	)
	if err != nil {
		return nil, fmt.Errorf("score item %s: %w", item.ID, err)
	}

	if strings.TrimSpace(content) == "null" {
		return &models.CandidateIdea{}, nil
	}

	var candidate models.CandidateIdea
	if err := json.Unmarshal([]byte(content), &candidate); err != nil {
		return nil, fmt.Errorf("score item %s: malformed response: %w", item.ID, err)
	}

	return &candidate, nil
}

func (c *Client) complete(ctx context.Context, temperature float64, system, user string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		ResponseFormat: &responseFormat{Type: "json_object"},
		Temperature:    temperature,
	}

	var chatResp chatResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(req).
		SetResult(&chatResp).
		Post(c.baseURL + "/chat/completions")

	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}

	if resp.StatusCode() != 200 {
		return "", fmt.Errorf("chat completion returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	if len(chatResp.Choices) == 0 || chatResp.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat completion returned no content")
	}

	logrus.Debugf("LLM completion: %d bytes", len(chatResp.Choices[0].Message.Content))
	return chatResp.Choices[0].Message.Content, nil
}
