// Package verifier checks whether an email address actually exists by
// asking the hunter.io email verifier. The call is synchronous; the handler
// that uses it treats an undeliverable verdict as "not found".
package verifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const hunterBaseURL = "https://api.hunter.io/v2"

// Client wraps the hunter.io REST API.
type Client struct {
	http   *resty.Client
	apiKey string
}

// New builds a verifier client. The API key may be empty; Exists then
// reports every address as deliverable so the service keeps working without
// the external dependency.
func New(apiKey string) *Client {
	return &Client{
		http: resty.New().
			SetBaseURL(hunterBaseURL).
			SetTimeout(10 * time.Second).
			SetRetryCount(2),
		apiKey: apiKey,
	}
}

// verifyResponse mirrors the fields of the email-verifier payload we care
// about. Status is one of "valid", "invalid", "accept_all", "webmail",
// "disposable", "unknown".
type verifyResponse struct {
	Data struct {
		Status string `json:"status"`
		Result string `json:"result"`
	} `json:"data"`
}

// Exists reports whether the provider considers the address discoverable.
// Provider outages fail open: the address is treated as deliverable and the
// error is logged, so an external hiccup cannot lock users out of lookups.
func (c *Client) Exists(ctx context.Context, email string) bool {
	if c.apiKey == "" {
		return true
	}
	var out verifyResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("email", email).
		SetQueryParam("api_key", c.apiKey).
		SetResult(&out).
		Get("/email-verifier")
	if err != nil {
		log.Warn().Err(err).Str("email", email).Msg("hunter: verify request failed")
		return true
	}
	if resp.IsError() {
		log.Warn().Int("status", resp.StatusCode()).Str("email", email).
			Msg(fmt.Sprintf("hunter: verify returned %s", resp.Status()))
		return true
	}
	switch out.Data.Result {
	case "undeliverable":
		return false
	case "deliverable", "risky":
		return true
	}
	// Fall back to the status field for older payload shapes.
	return out.Data.Status != "invalid"
}
