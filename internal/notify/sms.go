package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// HTTPSMSSender posts OTP messages to a JSON SMS gateway. The request shape
// (to/from/body plus an API-key header) matches the common gateway pattern;
// vendor-specific quirks belong in a dedicated implementation.
type HTTPSMSSender struct {
	GatewayURL string
	APIKey     string
	Sender     string
	Client     *http.Client // defaults to http.DefaultClient
}

func (s *HTTPSMSSender) SendOTP(ctx context.Context, to string, code int64) error {
	payload, err := json.Marshal(map[string]string{
		"to":   to,
		"from": s.Sender,
		"body": fmt.Sprintf("Your OTP for SneakEase verification is: %d", code),
	})
	if err != nil {
		return fmt.Errorf("notify: encoding SMS payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.GatewayURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: building SMS request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: sending OTP SMS to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: SMS gateway returned status %d", resp.StatusCode)
	}
	return nil
}
