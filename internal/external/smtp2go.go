package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"mailmerge/internal/types"
)

const defaultSMTP2GOBaseURL = "https://api.smtp2go.com/v3"

// SMTP2GOClient sends email directly through the SMTP2GO v3 API, for
// deployments that bypass the hosted send function.
type SMTP2GOClient struct {
	*BaseClient
	baseURL string
	apiKey  types.SecretString
	from    string
}

var _ EmailProvider = (*SMTP2GOClient)(nil)

// SMTP2GOConfig holds the dependencies for an SMTP2GOClient.
type SMTP2GOConfig struct {
	APIKey      types.SecretString
	FromAddress string
	BaseURL     string // defaults to the public API
	HTTPClient  *http.Client
	Options     []BaseClientOption
}

// NewSMTP2GOClient creates an SMTP2GO API client.
func NewSMTP2GOClient(cfg SMTP2GOConfig) *SMTP2GOClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultSMTP2GOBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &SMTP2GOClient{
		BaseClient: NewBaseClient(
			httpClient,
			"smtp2go",
			DefaultRetryPolicy(),
			"mailmerge/1.0",
			cfg.Options...,
		),
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
		from:    cfg.FromAddress,
	}
}

type smtp2goSendRequest struct {
	Sender   string   `json:"sender"`
	To       []string `json:"to"`
	Subject  string   `json:"subject"`
	TextBody string   `json:"text_body"`
}

type smtp2goSendResponse struct {
	Data struct {
		Succeeded int    `json:"succeeded"`
		Failed    int    `json:"failed"`
		Error     string `json:"error"`
		ErrorCode string `json:"error_code"`
	} `json:"data"`
}

// Send delivers one message via POST /email/send.
func (c *SMTP2GOClient) Send(ctx context.Context, input types.SendInput) error {
	payload, err := json.Marshal(smtp2goSendRequest{
		Sender:   c.from,
		To:       []string{input.To},
		Subject:  input.Subject,
		TextBody: input.Body,
	})
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal smtp2go request",
			err,
		)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/email/send", bytes.NewReader(payload))
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to build smtp2go request",
			err,
		)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Smtp2go-Api-Key", c.apiKey.Unmask())

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var result smtp2goSendResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return types.NewAppError(
			types.ErrCodeUpstreamEmailProvider,
			"smtp2go returned unreadable response",
			err,
		)
	}

	if resp.StatusCode >= 400 || result.Data.Error != "" {
		msg := result.Data.Error
		if msg == "" {
			msg = fmt.Sprintf("smtp2go rejected the request (status %d)", resp.StatusCode)
		}
		if result.Data.ErrorCode != "" {
			msg = fmt.Sprintf("%s [%s]", msg, result.Data.ErrorCode)
		}
		return types.NewAppError(types.ErrCodeUpstreamSendRejected, msg, nil)
	}
	if result.Data.Succeeded == 0 {
		return types.NewAppError(
			types.ErrCodeUpstreamSendRejected,
			fmt.Sprintf("smtp2go accepted the request but delivered to 0 recipients (%d failed)", result.Data.Failed),
			nil,
		)
	}

	return nil
}
