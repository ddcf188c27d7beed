package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"mailmerge/internal/types"
)

// FuncClient delivers email through a hosted send-email function that
// fronts the actual SMTP provider. The function accepts a JSON payload of
// {to, subject, body} and reports outcomes in the response body: a 200
// with {"success": false} is still a failed send.
type FuncClient struct {
	*BaseClient
	endpoint string
	apiKey   types.SecretString
}

var _ EmailProvider = (*FuncClient)(nil)

// FuncClientConfig holds the dependencies for a FuncClient.
type FuncClientConfig struct {
	Endpoint   string
	APIKey     types.SecretString
	HTTPClient *http.Client
	Options    []BaseClientOption
}

// NewFuncClient creates a send-function client.
func NewFuncClient(cfg FuncClientConfig) *FuncClient {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &FuncClient{
		BaseClient: NewBaseClient(
			httpClient,
			"send-email-func",
			DefaultRetryPolicy(),
			"mailmerge/1.0",
			cfg.Options...,
		),
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
	}
}

type funcSendRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

type funcSendResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Send posts one message to the send-email function.
func (c *FuncClient) Send(ctx context.Context, input types.SendInput) error {
	payload, err := json.Marshal(funcSendRequest{
		To:      input.To,
		Subject: input.Subject,
		Body:    input.Body,
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal send request",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build send request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result funcSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"send function returned unreadable response",
			err,
		)
	}

	if resp.StatusCode >= 400 {
		return rejectionError(result.Error, resp.StatusCode)
	}
	if !result.Success {
		return rejectionError(result.Error, resp.StatusCode)
	}

	return nil
}

// rejectionError turns a provider-reported failure into an AppError whose
// message a dashboard user can act on. API key problems get a hint since
// they are the most common misconfiguration.
func rejectionError(providerMsg string, status int) *types.AppError {
	msg := providerMsg
	if msg == "" {
		msg = fmt.Sprintf("send function reported failure (status %d)", status)
	}
	if looksLikeAuthFailure(providerMsg, status) {
		msg += " (check the email provider API key configuration)"
	}
	return types.NewAppError(types.ErrCodeUpstreamSendRejected, msg, nil)
}

func looksLikeAuthFailure(providerMsg string, status int) bool {
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return true
	}
	lower := strings.ToLower(providerMsg)
	return strings.Contains(lower, "api key") || strings.Contains(lower, "unauthorized")
}
