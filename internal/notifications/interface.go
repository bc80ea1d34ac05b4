package notifications

import (
	"context"

	"github.com/threadsign/ideas-bot/internal/models"
)

// EmailSender defines the contract for sending idea digests. It returns the
// provider message id for the sent message.
type EmailSender interface {
	SendDigest(ctx context.Context, digest *models.Digest) (string, error)
}
