package external

import (
	"context"
	"strings"

	"github.com/resend/resend-go/v3"

	"mailmerge/internal/types"
)

// ResendClient sends email through the Resend API using the official SDK.
// The SDK handles transport concerns itself, so this client maps errors
// only; it does not route through the BaseClient.
type ResendClient struct {
	client *resend.Client
	from   string
}

var _ EmailProvider = (*ResendClient)(nil)

// ResendConfig holds the dependencies for a ResendClient.
type ResendConfig struct {
	APIKey      types.SecretString
	FromAddress string
}

// NewResendClient creates a Resend provider client.
func NewResendClient(cfg ResendConfig) *ResendClient {
	return &ResendClient{
		client: resend.NewClient(cfg.APIKey.Unmask()),
		from:   cfg.FromAddress,
	}
}

// Send delivers one message via the Resend emails API.
func (c *ResendClient) Send(ctx context.Context, input types.SendInput) error {
	req := &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{input.To},
		Subject: input.Subject,
		Text:    input.Body,
	}

	if _, err := c.client.Emails.SendWithContext(ctx, req); err != nil {
		return types.NewAppError(mapResendCode(err), "resend rejected the send request", err)
	}
	return nil
}

func mapResendCode(err error) types.ErrorCode {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "rate"):
		return types.ErrCodeUpstreamRateLimited
	case strings.Contains(msg, "api key") || strings.Contains(msg, "unauthorized") || strings.Contains(msg, "validation"):
		return types.ErrCodeUpstreamSendRejected
	default:
		return types.ErrCodeUpstreamEmailProvider
	}
}
