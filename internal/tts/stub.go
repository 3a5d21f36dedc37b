package tts

import (
	"context"
	"fmt"

	"texttones/internal/conversions"
)

// id3Header is an empty ID3v2.4 tag, enough for players to accept the stub output.
var id3Header = []byte{0x49, 0x44, 0x33, 0x04, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}

// StubClient simulates synthesis for development.
type StubClient struct{}

// NewStubClient constructs StubClient.
func NewStubClient() *StubClient {
	return &StubClient{}
}

// Synthesize returns deterministic bytes derived from the request.
func (s *StubClient) Synthesize(ctx context.Context, req conversions.SynthesisRequest) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	body := fmt.Sprintf("%s|%s|%s", req.LanguageCode, req.VoiceID, req.Text)
	out := make([]byte, 0, len(id3Header)+len(body))
	out = append(out, id3Header...)
	out = append(out, body...)
	return out, nil
}
