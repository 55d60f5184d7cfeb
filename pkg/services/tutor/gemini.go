package tutor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"
)

const (
	// DefaultGeminiModel is used when no model name is configured
	DefaultGeminiModel = "gemini-2.0-flash"

	// DefaultGeminiTimeout bounds a single generate call
	DefaultGeminiTimeout = 20 * time.Second
)

// GeminiConfig configures the hosted Gemini model
type GeminiConfig struct {
	APIKey     string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client // Optional; tests swap the transport
}

// GeminiModel answers questions with the Gemini API
type GeminiModel struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiModel creates a Gemini-backed Model
func NewGeminiModel(ctx context.Context, config GeminiConfig) (*GeminiModel, error) {
	if config.APIKey == "" {
		return nil, errors.New("gemini api key is required")
	}
	if config.Model == "" {
		config.Model = DefaultGeminiModel
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultGeminiTimeout
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}

	return &GeminiModel{
		client:  client,
		model:   config.Model,
		timeout: config.Timeout,
	}, nil
}

var _ Model = (*GeminiModel)(nil)

// Generate sends prompt to the model. Auth, quota, server and transport
// failures come back as ErrModelUnavailable so the keyword table answers.
func (m *GeminiModel) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.client.Models.GenerateContent(callCtx, m.model, genai.Text(prompt), nil)
	if err != nil {
		return "", m.classify(ctx, err)
	}

	return strings.TrimSpace(resp.Text()), nil
}

func (m *GeminiModel) classify(ctx context.Context, err error) error {
	// The caller gave up; that is not a model outage
	if ctx.Err() != nil {
		return err
	}

	code, ok := apiErrorCode(err)
	if !ok {
		// Transport failure or our own timeout
		return fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}

	switch {
	case code == http.StatusUnauthorized,
		code == http.StatusForbidden,
		code == http.StatusTooManyRequests,
		code >= http.StatusInternalServerError:
		return fmt.Errorf("%w: gemini returned %d: %v", ErrModelUnavailable, code, err)
	default:
		return fmt.Errorf("gemini returned %d: %w", code, err)
	}
}

func apiErrorCode(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
