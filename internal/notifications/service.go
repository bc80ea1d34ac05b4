package notifications

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/threadsign/ideas-bot/internal/config"
	"github.com/threadsign/ideas-bot/internal/models"
	"gopkg.in/gomail.v2"
)

// Service sends idea digests over SMTP
type Service struct {
	config *config.Config
	dialer *gomail.Dialer
}

// Ensure Service implements EmailSender
var _ EmailSender = (*Service)(nil)

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	return &Service{
		config: cfg,
		dialer: gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
	}
}

// SendDigest renders and sends one digest email. The Message-ID is derived
// deterministically from the subscription and idea ids, so a resend of the
// same digest (after a lost delivery record) carries the same id and can be
// deduplicated by the receiving side.
func (s *Service) SendDigest(ctx context.Context, digest *models.Digest) (string, error) {
	if len(digest.Ideas) == 0 {
		return "", fmt.Errorf("digest for subscription %s has no ideas", digest.Subscription.ID)
	}

	subject := fmt.Sprintf("%d New Product Idea%s from ThreadSign",
		len(digest.Ideas), plural(len(digest.Ideas)))

	htmlBody, err := s.buildDigestHTML(digest)
	if err != nil {
		return "", fmt.Errorf("failed to build digest HTML: %w", err)
	}

	messageID := s.digestMessageID(digest)

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.EmailFrom)
	m.SetHeader("To", digest.Recipient)
	m.SetHeader("Subject", subject)
	m.SetHeader("Message-ID", messageID)
	m.SetBody("text/plain", s.buildDigestText(digest))
	m.AddAlternative("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return "", fmt.Errorf("failed to send digest email: %w", err)
	}

	return messageID, nil
}

// digestMessageID hashes the subscription id plus the sorted idea ids.
func (s *Service) digestMessageID(digest *models.Digest) string {
	ids := make([]string, len(digest.Ideas))
	for i, idea := range digest.Ideas {
		ids[i] = idea.ID
	}
	sort.Strings(ids)

	h := sha256.Sum256([]byte(digest.Subscription.ID + ":" + strings.Join(ids, ",")))
	return fmt.Sprintf("<%s@threadsign>", hex.EncodeToString(h[:16]))
}

var digestTemplate = template.Must(template.New("digest").Parse(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New Product Ideas</title>
</head>
<body style="font-family: system-ui, -apple-system, sans-serif; max-width: 600px; margin: 0 auto;">
    <h1 style="font-size: 24px; font-weight: 700; margin: 0 0 16px 0;">New Product Ideas</h1>
    <p style="color: #6b7280; font-size: 16px; margin: 0 0 24px 0;">
        Here are {{len .Ideas}} new product idea{{if gt (len .Ideas) 1}}s{{end}} matching your subscribed topics: {{.Topics}}
    </p>
    {{range .Ideas}}
    <div style="margin-bottom: 24px; padding-bottom: 24px; border-bottom: 1px solid #e5e7eb;">
        <h3 style="margin: 0 0 8px 0; font-size: 18px; font-weight: 600;">{{.Title}}</h3>
        <p style="margin: 0 0 8px 0; color: #6b7280; font-size: 14px;">{{.Pitch}}</p>
        <div style="margin: 8px 0;">
            <strong style="font-size: 14px;">Pain Insight:</strong>
            <p style="margin: 4px 0 0 0; color: #374151; font-size: 14px;">{{.PainInsight}}</p>
        </div>
        <div style="margin: 8px 0; font-size: 14px;">
            <span style="color: #6b7280;">Score: </span>
            <strong style="color: #059669;">{{.Score}}</strong>
        </div>
    </div>
    {{end}}
    <div style="margin-top: 32px; padding-top: 24px; border-top: 1px solid #e5e7eb;">
        <p style="color: #6b7280; font-size: 14px; margin: 0 0 8px 0;">
            You're receiving this email because you subscribed to updates for: {{.Topics}}
        </p>
        <p style="color: #6b7280; font-size: 14px; margin: 0;">
            <a href="{{.AppURL}}/dashboard" style="color: #2563eb;">Manage your subscriptions</a>
        </p>
    </div>
</body>
</html>
`))

func (s *Service) buildDigestHTML(digest *models.Digest) (string, error) {
	data := struct {
		Ideas  []models.Idea
		Topics string
		AppURL string
	}{
		Ideas:  digest.Ideas,
		Topics: strings.Join(digest.TopicLabels, ", "),
		AppURL: s.config.AppURL,
	}

	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (s *Service) buildDigestText(digest *models.Digest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "New Product Ideas\n\n")
	fmt.Fprintf(&b, "%d new product idea%s matching your subscribed topics: %s\n\n",
		len(digest.Ideas), plural(len(digest.Ideas)), strings.Join(digest.TopicLabels, ", "))

	for _, idea := range digest.Ideas {
		fmt.Fprintf(&b, "%s (score %d)\n", idea.Title, idea.Score)
		fmt.Fprintf(&b, "%s\n", idea.Pitch)
		if idea.PainInsight != "" {
			fmt.Fprintf(&b, "Pain insight: %s\n", idea.PainInsight)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Manage your subscriptions: %s/dashboard\n", s.config.AppURL)
	return b.String()
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
