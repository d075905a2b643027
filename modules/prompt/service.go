package prompt

import (
	"context"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/model"
)

// ContentGenerator - genai.Models 중 사용하는 부분
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type Service struct {
	models ContentGenerator
	model  string
	retry  gemini.RetryPolicy
}

// NewService - 프롬프트 개선 서비스 생성
func NewService(models ContentGenerator, cfg *config.Config) *Service {
	return &Service{
		models: models,
		model:  cfg.GeminiPromptModel,
		retry:  gemini.RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: cfg.RetryBackoff},
	}
}

// Refine - 아이디어(+참조 이미지)를 생성용 프롬프트로 다듬음. 어떤 실패든 원래 아이디어를 그대로 반환
func (s *Service) Refine(ctx context.Context, idea string, image *model.ReferenceImage) string {
	if s == nil || s.models == nil {
		return idea
	}

	var parts []*genai.Part
	if image != nil && len(image.Data) > 0 {
		parts = append(parts, genai.NewPartFromBytes(image.Data, image.MimeType))
	}
	parts = append(parts, genai.NewPartFromText(buildRefinePrompt(idea, image != nil)))

	log.Printf("✨ [Prompt] Refining idea (%d chars, image: %v)", len(idea), image != nil)

	resp, err := gemini.Retry(ctx, s.retry, "Prompt", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return s.models.GenerateContent(ctx, s.model, []*genai.Content{{Role: "user", Parts: parts}}, nil)
	})
	if err != nil {
		log.Printf("⚠️  [Prompt] Refinement failed, keeping original idea: %v", err)
		return idea
	}

	refined := strings.TrimSpace(gemini.ResponseText(resp))
	if refined == "" {
		return idea
	}

	log.Printf("✅ [Prompt] Refined prompt: %s", truncate(refined, 80))
	return refined
}

func buildRefinePrompt(idea string, hasImage bool) string {
	var b strings.Builder
	b.WriteString("You are an expert creative director and social media strategist.\n")
	b.WriteString("Refine the following user input into a clear, descriptive, and engaging prompt suitable for generating high-quality social media content.\n")
	if hasImage {
		b.WriteString("An image has been provided. Analyze its key visual elements (subject, style, lighting, colors) and incorporate them into the refined prompt to ensure the output matches the visual context.\n")
	}
	fmt.Fprintf(&b, "\nUser Input: %q\n\n", idea)
	b.WriteString("Output only the refined prompt text. Keep it under 3 sentences, but make it evocative and specific.")
	return b.String()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
