package prescriptions

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/meridianrx/fillengine/pkg/circuitbreaker"
)

// codeNotFound is the internal service convention for "no such record".
const codeNotFound = 1104

// ClientConfig holds configuration for the internal prescriptions service.
type ClientConfig struct {
	// BaseURL is the service root, e.g. https://services.internal/prescriptions.
	BaseURL string
	// InternalKey is the shared secret sent as the _internal_ field on every
	// request body for server-to-server auth.
	InternalKey string
	// RequestTimeout bounds each HTTP call.
	RequestTimeout time.Duration
}

// DefaultClientConfig returns defaults for the prescriptions service.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		RequestTimeout: 30 * time.Second,
	}
}

// Client implements Source against the internal prescriptions service.
type Client struct {
	cfg     ClientConfig
	http    *http.Client
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.Logger
}

// NewClient creates a prescriptions service client. The breaker may be nil.
func NewClient(cfg ClientConfig, breaker *circuitbreaker.CircuitBreaker, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.RequestTimeout},
		breaker: breaker,
		logger:  logger,
	}
}

// envelope is the internal service response wrapper.
type envelope struct {
	Status bool            `json:"status"`
	Data   json.RawMessage `json:"data"`
	Error  *serviceError   `json:"error"`
}

type serviceError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// PatientID resolves the e-prescribing patient id for a CRM customer.
func (c *Client) PatientID(ctx context.Context, crmType string, customerID string) (int, error) {
	body := map[string]interface{}{
		"crm_type": crmType,
		"crm_id":   customerID,
	}

	var resp struct {
		PatientID int `json:"patient_id"`
	}
	if err := c.read(ctx, "patient", body, &resp); err != nil {
		return 0, err
	}
	if resp.PatientID == 0 {
		return 0, ErrNotFound
	}
	return resp.PatientID, nil
}

// ForPatient returns the patient's full prescription list.
func (c *Client) ForPatient(ctx context.Context, patientID int) ([]Prescription, error) {
	body := map[string]interface{}{
		"patient_id": patientID,
	}

	var rxs []Prescription
	if err := c.read(ctx, "patient/prescriptions", body, &rxs); err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		return nil, err
	}
	return rxs, nil
}

// read performs one enveloped service call and decodes data into out.
func (c *Client) read(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	call := func() (interface{}, error) {
		return nil, c.do(ctx, path, body, out)
	}

	var err error
	if c.breaker != nil {
		_, err = c.breaker.Execute(ctx, call)
	} else {
		_, err = call()
	}
	return err
}

func (c *Client) do(ctx context.Context, path string, body map[string]interface{}, out interface{}) error {
	body["_internal_"] = c.cfg.InternalKey

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.cfg.BaseURL+"/"+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("prescriptions service: %w", err)
	}
	defer res.Body.Close()

	var env envelope
	if err := json.NewDecoder(res.Body).Decode(&env); err != nil {
		return fmt.Errorf("decode envelope: %w", err)
	}

	if !env.Status {
		if env.Error != nil && env.Error.Code == codeNotFound {
			return ErrNotFound
		}
		if env.Error != nil {
			return fmt.Errorf("prescriptions service error %d: %s", env.Error.Code, env.Error.Msg)
		}
		return fmt.Errorf("prescriptions service: status false with no error")
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("decode data: %w", err)
		}
	}
	return nil
}
