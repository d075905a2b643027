package text

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/model"
	"omnipost-server/modules/platform"
)

// ContentGenerator - genai.Models 중 사용하는 부분
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Error - 텍스트 생성 실패 (원격 에러 / 빈 응답 / 빈 JSON 모두 동일하게 취급)
type Error struct {
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("text generation failed: %s: %v", e.Reason, e.Err)
	}
	return "text generation failed: " + e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

type Service struct {
	models ContentGenerator
	model  string
	retry  gemini.RetryPolicy
}

// NewService - 텍스트 생성 서비스 생성
func NewService(models ContentGenerator, cfg *config.Config) *Service {
	return &Service{
		models: models,
		model:  cfg.GeminiTextModel,
		retry:  gemini.RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: cfg.RetryBackoff},
	}
}

type postPayload struct {
	Content     string   `json:"content"`
	Hashtags    []string `json:"hashtags"`
	ImagePrompt string   `json:"imagePrompt"`
}

// Generate - 선택된 플랫폼만 한 번의 구조화 요청으로 생성
func (s *Service) Generate(ctx context.Context, idea string, tone model.Tone, selected map[model.Platform]bool) (map[model.Platform]*model.PlatformPost, error) {
	platforms := platform.Ordered(selected)
	if len(platforms) == 0 {
		return map[model.Platform]*model.PlatformPost{}, nil
	}

	log.Printf("📝 [Text] Generating posts for %v (tone: %s)", platforms, tone)

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   buildSchema(platforms),
	}
	contents := []*genai.Content{{Role: "user", Parts: []*genai.Part{genai.NewPartFromText(buildPrompt(idea, tone, platforms))}}}

	resp, err := gemini.Retry(ctx, s.retry, "Text", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return s.models.GenerateContent(ctx, s.model, contents, cfg)
	})
	if err != nil {
		log.Printf("❌ [Text] Remote call failed: %v", err)
		return nil, &Error{Reason: "remote call failed", Err: err}
	}

	body := strings.TrimSpace(gemini.ResponseText(resp))
	if body == "" {
		return nil, &Error{Reason: "empty response body"}
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(stripCodeFence(body)), &raw); err != nil {
		return nil, &Error{Reason: "invalid JSON", Err: err}
	}
	if len(raw) == 0 {
		return nil, &Error{Reason: "empty JSON object"}
	}

	posts := make(map[model.Platform]*model.PlatformPost, len(raw))
	for key, value := range raw {
		info, ok := platform.Lookup(key)
		if !ok || !selected[info.Key] {
			log.Printf("⚠️  [Text] Ignoring unrequested key %q", key)
			continue
		}

		var payload postPayload
		if err := json.Unmarshal(value, &payload); err != nil {
			log.Printf("⚠️  [Text] Skipping malformed entry %q: %v", key, err)
			continue
		}

		posts[info.Key] = &model.PlatformPost{
			Platform:    info.Key,
			Content:     payload.Content,
			Hashtags:    payload.Hashtags,
			ImagePrompt: payload.ImagePrompt,
			AspectRatio: info.DefaultAspectRatio,
		}
	}

	log.Printf("✅ [Text] Generated %d/%d posts", len(posts), len(platforms))
	return posts, nil
}

func buildPrompt(idea string, tone model.Tone, platforms []model.Platform) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Generate %d distinct social media posts based on this idea: %q.\n", len(platforms), idea)
	fmt.Fprintf(&b, "Tone: %s.\n\n", tone)
	for i, p := range platforms {
		info, _ := platform.Lookup(string(p))
		fmt.Fprintf(&b, "%d. %s (key %q): %s\n", i+1, info.Name, p, info.StyleGuide)
	}
	b.WriteString("\nReturn the response in JSON format, keyed by exactly these platform keys.")
	return b.String()
}

func buildSchema(platforms []model.Platform) *genai.Schema {
	schema := &genai.Schema{
		Type:       genai.TypeObject,
		Properties: make(map[string]*genai.Schema, len(platforms)),
	}
	for _, p := range platforms {
		info, _ := platform.Lookup(string(p))
		schema.Properties[string(p)] = &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"content":     {Type: genai.TypeString},
				"hashtags":    {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
				"imagePrompt": {Type: genai.TypeString, Description: info.ImageHint},
			},
			Required: []string{"content", "hashtags", "imagePrompt"},
		}
		schema.PropertyOrdering = append(schema.PropertyOrdering, string(p))
	}
	return schema
}

// stripCodeFence - ```json ... ``` 로 감싼 응답 처리
func stripCodeFence(body string) string {
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```json")
	body = strings.TrimPrefix(body, "```")
	body = strings.TrimSuffix(body, "```")
	return strings.TrimSpace(body)
}
