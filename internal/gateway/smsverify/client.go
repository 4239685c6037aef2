// Package smsverify talks to the external SMS verification service. The
// service generates, delivers and checks one-time codes itself; this client
// only relays phone numbers and candidate codes and trusts the verdict.
package smsverify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrDelivery indicates the verification channel is unreachable or
// misconfigured. It never reveals provider details to callers.
var ErrDelivery = errors.New("sms verification channel unavailable")

// Client implements domain.SMSVerifier over the provider's HTTP API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client with a bounded per-request timeout so a slow provider
// cannot stall a login indefinitely.
func New(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	To      string `json:"to"`
	Channel string `json:"channel"`
}

type checkRequest struct {
	To   string `json:"to"`
	Code string `json:"code"`
}

type checkResponse struct {
	Valid bool `json:"valid"`
}

func (c *Client) post(ctx context.Context, path string, body any) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, ErrDelivery
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDelivery, err)
	}
	return resp, nil
}

// Send asks the provider to deliver a one-time code to phone.
func (c *Client) Send(ctx context.Context, phone string) error {
	resp, err := c.post(ctx, "/v2/verifications", sendRequest{To: phone, Channel: "sms"})
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: provider returned %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}

// Check asks the provider whether code is currently valid for phone.
// A definitive "no" is (false, nil); only channel failures return an error.
func (c *Client) Check(ctx context.Context, phone, code string) (bool, error) {
	resp, err := c.post(ctx, "/v2/verifications/check", checkRequest{To: phone, Code: code})
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var result checkResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return false, fmt.Errorf("%w: %v", ErrDelivery, err)
		}
		return result.Valid, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		// The provider recognized the request and rejected the code.
		return false, nil
	default:
		return false, fmt.Errorf("%w: provider returned %d", ErrDelivery, resp.StatusCode)
	}
}
