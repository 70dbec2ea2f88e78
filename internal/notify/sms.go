package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// SMSConfig holds the SMS gateway settings.
type SMSConfig struct {
	// URL is the gateway's send endpoint.
	URL string
	// Token is the bearer token for the gateway.
	Token string
	// From is the sending number.
	From           string
	RequestTimeout time.Duration
}

// DefaultSMSConfig returns defaults for the SMS gateway.
func DefaultSMSConfig() SMSConfig {
	return SMSConfig{
		RequestTimeout: 15 * time.Second,
	}
}

// SMSClient implements Messenger against the HTTP SMS gateway.
type SMSClient struct {
	cfg    SMSConfig
	http   *http.Client
	logger *zap.Logger
}

// NewSMSClient creates an SMS gateway client.
func NewSMSClient(cfg SMSConfig, logger *zap.Logger) *SMSClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SMSClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.RequestTimeout},
		logger: logger,
	}
}

// Send delivers one message through the gateway.
func (c *SMSClient) Send(ctx context.Context, phone, message string) error {
	payload, err := json.Marshal(map[string]string{
		"from": c.cfg.From,
		"to":   phone,
		"body": message,
	})
	if err != nil {
		return fmt.Errorf("marshal sms: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("sms gateway: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 300 {
		return fmt.Errorf("sms gateway: status %d", res.StatusCode)
	}

	c.logger.Debug("sms sent", zap.String("to", phone))
	return nil
}
