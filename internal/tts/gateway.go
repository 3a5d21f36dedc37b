package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"texttones/internal/conversions"
)

const (
	defaultEngine       = "neural"
	defaultOutputFormat = "mp3"
	maxErrorBody        = 4 << 10
)

// APIError is a failure reported by the speech service.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (status %d)", e.Code, e.Message, e.StatusCode)
}

// GatewayOptions configures optional gateway behavior.
type GatewayOptions struct {
	Engine     string
	HTTPClient *http.Client
}

// HTTPGateway calls a Polly-compatible synthesis endpoint that accepts a JSON
// request and answers with MP3 bytes.
type HTTPGateway struct {
	logger     zerolog.Logger
	endpoint   string
	apiKey     string
	engine     string
	httpClient *http.Client
}

// NewHTTPGateway creates a gateway posting to endpoint.
func NewHTTPGateway(logger zerolog.Logger, endpoint, apiKey string, opts *GatewayOptions) *HTTPGateway {
	if opts == nil {
		opts = &GatewayOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	engine := opts.Engine
	if engine == "" {
		engine = defaultEngine
	}

	return &HTTPGateway{
		logger:     logger.With().Str("component", "tts_gateway").Logger(),
		endpoint:   endpoint,
		apiKey:     apiKey,
		engine:     engine,
		httpClient: httpClient,
	}
}

type gatewayRequest struct {
	Text         string `json:"text"`
	OutputFormat string `json:"outputFormat"`
	VoiceID      string `json:"voiceId"`
	LanguageCode string `json:"languageCode"`
	Engine       string `json:"engine"`
}

type gatewayError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Synthesize converts req into MP3 audio.
func (g *HTTPGateway) Synthesize(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error) {
	payload, err := json.Marshal(gatewayRequest{
		Text:         req.Text,
		OutputFormat: defaultOutputFormat,
		VoiceID:      req.VoiceID,
		LanguageCode: req.LanguageCode,
		Engine:       g.engine,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")
	if g.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	g.logger.Debug().
		Str("voice_id", req.VoiceID).
		Str("language", req.LanguageCode).
		Str("engine", g.engine).
		Int("text_length", len(req.Text)).
		Msg("calling synthesis endpoint")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		g.logger.Error().Err(err).Str("endpoint", g.endpoint).Msg("synthesis request failed")
		return nil, fmt.Errorf("call synthesis endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := decodeAPIError(resp)
		g.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("message", apiErr.Message).
			Msg("synthesis endpoint error")
		return nil, apiErr
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "audio/") {
		g.logger.Warn().Str("content_type", ct).Msg("unexpected content type from synthesis endpoint")
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("synthesis endpoint returned empty audio")
	}

	g.logger.Debug().Int("audio_bytes", len(audio)).Msg("synthesis succeeded")
	return audio, nil
}

func decodeAPIError(resp *http.Response) *APIError {
	body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Code:       fmt.Sprintf("http_%d", resp.StatusCode),
		Message:    strings.TrimSpace(string(body)),
	}
	if readErr != nil {
		apiErr.Message = fmt.Sprintf("(failed to read body: %v)", readErr)
		return apiErr
	}

	var decoded gatewayError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Code != "" {
		apiErr.Code = decoded.Code
		apiErr.Message = decoded.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
