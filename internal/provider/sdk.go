package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/resendlabs/resend-go"
)

// SDKSender sends through the official Resend Go SDK. It is used by the CLI
// for direct sends that bypass the proxy. Custom headers are not forwarded
// and provider failures are reported with CategoryProvider, since the SDK
// does not expose the response status.
type SDKSender struct {
	newClient func(apiKey string) *resend.Client
}

// NewSDKSender creates a sender backed by resend-go
func NewSDKSender() *SDKSender {
	return &SDKSender{newClient: resend.NewClient}
}

// Send sends the email. ctx is checked before the call only.
func (s *SDKSender) Send(ctx context.Context, apiKey string, email Email) (*Result, error) {
	if apiKey == "" {
		return nil, errors.New("API key is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	client := s.newClient(apiKey)
	resp, err := client.Emails.Send(&resend.SendEmailRequest{
		From:    email.From,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
	})
	if err != nil {
		return nil, &Error{
			Category: CategoryProvider,
			Message:  fmt.Sprintf("failed to send email via Resend: %v", err),
			Err:      err,
		}
	}

	return &Result{ID: resp.Id}, nil
}
