package image

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/felixgeelhaar/bolt/v3"
)

const defaultComfyUIEndpoint = "http://localhost:8188/prompt"

// ComfyUI is the local REST image backend: a single POST of {"prompt": ...}
// answered with either an inline base64 image or a URL.
type ComfyUI struct {
	cfg Config
	log *bolt.Logger

	// HTTPClient overrides the transport in tests.
	HTTPClient *http.Client
}

func (p *ComfyUI) Name() Kind {
	return KindComfyUI
}

func (p *ComfyUI) Generate(ctx context.Context, req Request) string {
	endpoint := p.cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultComfyUIEndpoint
	}
	client := p.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	body, err := json.Marshal(map[string]string{"prompt": BuildPrompt(req)})
	if err != nil {
		p.log.Warn().Str("provider", "comfyui").Err(err).Msg("image request encoding failed")
		return Placeholder
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		p.log.Warn().Str("provider", "comfyui").Err(err).Msg("image request failed")
		return Placeholder
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(httpReq)
	if err != nil {
		p.log.Warn().Str("provider", "comfyui").Err(err).Msg("image generation failed")
		return Placeholder
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		p.log.Warn().Str("provider", "comfyui").Int("status", resp.StatusCode).Msg("image generation failed")
		return Placeholder
	}

	var payload struct {
		Image string `json:"image"`
		URL   string `json:"url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		p.log.Warn().Str("provider", "comfyui").Err(err).Msg("image response decoding failed")
		return Placeholder
	}

	switch {
	case payload.Image != "":
		return fmt.Sprintf("data:image/jpeg;base64,%s", payload.Image)
	case payload.URL != "":
		return payload.URL
	default:
		p.log.Warn().Str("provider", "comfyui").Msg("no image returned")
		return Placeholder
	}
}
