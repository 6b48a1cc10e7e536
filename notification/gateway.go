package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// GatewaySender delivers messages through an HTTP mail gateway.
type GatewaySender struct {
	client *resty.Client
}

// NewGatewaySender builds a sender posting to the gateway's /send
// endpoint, authenticated with an API key header.
func NewGatewaySender(baseURL, apiKey string) *GatewaySender {
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Authorization", "Bearer "+apiKey).
		SetTimeout(10 * time.Second).
		SetRetryCount(0) // retries are the caller's decision, never implicit

	return &GatewaySender{client: client}
}

var _ Sender = (*GatewaySender)(nil)

func (g *GatewaySender) Send(ctx context.Context, msg Message) error {
	resp, err := g.client.R().
		SetContext(ctx).
		SetBody(msg).
		Post("/send")
	if err != nil {
		return fmt.Errorf("failed to reach mail gateway: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail gateway rejected message: status %d", resp.StatusCode())
	}
	return nil
}
