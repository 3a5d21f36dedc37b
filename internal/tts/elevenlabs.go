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
	defaultElevenLabsEndpoint = "https://api.elevenlabs.io/v1/text-to-speech/"
	defaultElevenLabsModel    = "eleven_multilingual_v2"
	elevenLabsOutputFormat    = "mp3_44100_128"
)

// Only these models accept language_code; the others reject the request.
var languageEnforcingModels = map[string]bool{
	"eleven_turbo_v2_5": true,
	"eleven_flash_v2_5": true,
}

// ElevenLabsOptions configures optional client behavior.
type ElevenLabsOptions struct {
	BaseURL    string
	ModelID    string
	HTTPClient *http.Client
	// VoiceIDs maps catalog voice names to ElevenLabs voice ids.
	VoiceIDs map[string]string
}

// ElevenLabsClient implements conversions.Synthesizer using ElevenLabs' API.
type ElevenLabsClient struct {
	logger       zerolog.Logger
	apiKey       string
	defaultVoice string
	voiceIDs     map[string]string
	modelID      string
	httpClient   *http.Client
	baseURL      string
}

// NewElevenLabsClient creates a new ElevenLabs TTS client. Catalog voices
// without a mapping are spoken by defaultVoiceID.
func NewElevenLabsClient(logger zerolog.Logger, apiKey, defaultVoiceID string, opts *ElevenLabsOptions) *ElevenLabsClient {
	if opts == nil {
		opts = &ElevenLabsOptions{}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{
			Timeout: 30 * time.Second,
		}
	}

	modelID := opts.ModelID
	if modelID == "" {
		modelID = defaultElevenLabsModel
	}

	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = defaultElevenLabsEndpoint
	}

	voiceIDs := make(map[string]string, len(opts.VoiceIDs))
	for name, id := range opts.VoiceIDs {
		voiceIDs[name] = id
	}

	return &ElevenLabsClient{
		logger:       logger.With().Str("component", "elevenlabs").Logger(),
		apiKey:       apiKey,
		defaultVoice: defaultVoiceID,
		voiceIDs:     voiceIDs,
		modelID:      modelID,
		httpClient:   httpClient,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

type elevenLabsRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	LanguageCode  string `json:"language_code,omitempty"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

type elevenLabsError struct {
	Detail struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"detail"`
}

func (c *ElevenLabsClient) voiceFor(name string) string {
	if id, ok := c.voiceIDs[name]; ok && id != "" {
		return id
	}
	return c.defaultVoice
}

// Synthesize converts req into MP3 audio.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error) {
	voiceID := c.voiceFor(req.VoiceID)
	if voiceID == "" {
		return nil, fmt.Errorf("no elevenlabs voice configured for %q", req.VoiceID)
	}

	reqBody := elevenLabsRequest{
		Text:    req.Text,
		ModelID: c.modelID,
	}
	if languageEnforcingModels[c.modelID] {
		reqBody.LanguageCode, _, _ = strings.Cut(req.LanguageCode, "-")
	}
	reqBody.VoiceSettings.Stability = 0.5
	reqBody.VoiceSettings.SimilarityBoost = 0.75

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := c.baseURL + "/" + voiceID + "?output_format=" + elevenLabsOutputFormat
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	httpReq.Header.Set("xi-api-key", c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "audio/mpeg")

	c.logger.Debug().
		Str("voice", req.VoiceID).
		Str("voice_id", voiceID).
		Str("model_id", c.modelID).
		Msg("calling ElevenLabs API")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		c.logger.Error().Err(err).Msg("ElevenLabs HTTP request failed")
		return nil, fmt.Errorf("call elevenlabs: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{
			StatusCode: resp.StatusCode,
			Code:       fmt.Sprintf("http_%d", resp.StatusCode),
			Message:    strings.TrimSpace(string(body)),
		}
		if readErr != nil {
			apiErr.Message = fmt.Sprintf("(failed to read body: %v)", readErr)
		}

		var decoded elevenLabsError
		if json.Unmarshal(body, &decoded) == nil && decoded.Detail.Status != "" {
			apiErr.Code = decoded.Detail.Status
			apiErr.Message = decoded.Detail.Message
		}

		c.logger.Error().
			Int("status_code", resp.StatusCode).
			Str("code", apiErr.Code).
			Str("response_body", apiErr.Message).
			Msg("ElevenLabs API error")
		return nil, apiErr
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}
	if len(audio) == 0 {
		c.logger.Warn().Msg("ElevenLabs returned empty audio response")
		return nil, errors.New("elevenlabs returned empty audio")
	}

	c.logger.Debug().Int("audio_bytes", len(audio)).Msg("ElevenLabs synthesis succeeded")
	return audio, nil
}
