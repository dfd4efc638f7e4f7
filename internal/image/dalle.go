package image

import (
	"context"

	"github.com/felixgeelhaar/bolt/v3"
	openai "github.com/sashabaranov/go-openai"
)

// DallE is the managed-cloud image backend. The API returns the image
// inline as base64, which is wrapped into a data URI.
type DallE struct {
	cfg Config
	log *bolt.Logger
}

func (p *DallE) Name() Kind {
	return KindDallE
}

func (p *DallE) Generate(ctx context.Context, req Request) string {
	if p.cfg.APIKey == "" {
		p.log.Warn().Str("provider", "dalle").Msg("image generation skipped: no API key")
		return Placeholder
	}

	conf := openai.DefaultConfig(p.cfg.APIKey)
	if p.cfg.Endpoint != "" {
		conf.BaseURL = p.cfg.Endpoint
	}
	client := openai.NewClientWithConfig(conf)

	model := p.cfg.Model
	if model == "" {
		model = openai.CreateImageModelDallE3
	}

	resp, err := client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         BuildPrompt(req),
		Model:          model,
		N:              1,
		Size:           openai.CreateImageSize1792x1024,
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		p.log.Warn().Str("provider", "dalle").Err(err).Msg("image generation failed")
		return Placeholder
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		p.log.Warn().Str("provider", "dalle").Msg("no image returned")
		return Placeholder
	}
	return "data:image/png;base64," + resp.Data[0].B64JSON
}
