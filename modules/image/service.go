package image

import (
	"context"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"
	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/model"
)

// ContentGenerator - genai.Models 중 사용하는 부분
type ContentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Encoder - 생성된 이미지 바이너리를 URL(data URI)로 변환
type Encoder func(data []byte, mimeType string) string

// supportedRatios - 이미지 모델이 받는 비율
var supportedRatios = map[string]bool{
	"1:1":  true,
	"3:4":  true,
	"4:3":  true,
	"9:16": true,
	"16:9": true,
}

// Request - 플랫폼 1개의 이미지 생성 요청
type Request struct {
	Prompt             string
	DefaultAspectRatio string
	Size               model.ImageSize
	Override           model.AspectRatio
	Reference          *model.ReferenceImage
	Count              int
}

type Service struct {
	models      ContentGenerator
	model       string
	retry       gemini.RetryPolicy
	maxParallel int
	encode      Encoder
}

// NewService - 이미지 생성 서비스 생성. encoder 가 nil 이면 PNG data URI
func NewService(models ContentGenerator, cfg *config.Config, encoder Encoder) *Service {
	if encoder == nil {
		encoder = PNGDataURI
	}
	return &Service{
		models:      models,
		model:       cfg.GeminiImageModel,
		retry:       gemini.RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: cfg.RetryBackoff},
		maxParallel: cfg.ImageMaxParallel,
		encode:      encoder,
	}
}

// PNGDataURI - 기본 인코더
func PNGDataURI(data []byte, mimeType string) string {
	return model.FormatDataURI("image/png", data)
}

// ResolveAspectRatio - Auto면 플랫폼 기본값, 아니면 오버라이드. 지원하지 않는 비율은 1:1
func ResolveAspectRatio(defaultRatio string, override model.AspectRatio) string {
	ratio := defaultRatio
	if override != "" && override != model.AspectRatioAuto {
		ratio = string(override)
	}
	if !supportedRatios[ratio] {
		return string(model.AspectRatioSquare)
	}
	return ratio
}

// Generate - Count 개 사본을 병렬 생성. 실패한 사본은 버리고 성공한 URL만 반환 (에러 없음)
func (s *Service) Generate(ctx context.Context, req Request) []string {
	count := req.Count
	if count < 1 {
		count = 1
	}
	ratio := ResolveAspectRatio(req.DefaultAspectRatio, req.Override)
	size := req.Size
	if !size.IsValid() {
		size = model.ImageSize1K
	}

	log.Printf("🎨 [Image] Generating %d image(s) - ratio: %s, size: %s, edit: %v", count, ratio, size, req.Reference != nil)

	results := make([]string, count)
	var g errgroup.Group
	if s.maxParallel > 0 {
		g.SetLimit(s.maxParallel)
	}
	for i := 0; i < count; i++ {
		g.Go(func() error {
			url, err := s.generateSingle(ctx, req.Prompt, ratio, size, req.Reference)
			if err != nil {
				log.Printf("⚠️  [Image] Copy %d/%d failed: %v", i+1, count, err)
				return nil
			}
			results[i] = url
			return nil
		})
	}
	_ = g.Wait()

	urls := make([]string, 0, count)
	for _, url := range results {
		if url != "" {
			urls = append(urls, url)
		}
	}

	log.Printf("✅ [Image] %d/%d copies succeeded", len(urls), count)
	return urls
}

func (s *Service) generateSingle(ctx context.Context, prompt, ratio string, size model.ImageSize, ref *model.ReferenceImage) (string, error) {
	var parts []*genai.Part
	if ref != nil && len(ref.Data) > 0 {
		parts = []*genai.Part{
			genai.NewPartFromBytes(ref.Data, ref.MimeType),
			genai.NewPartFromText("Edit this image to match the following description: " + prompt),
		}
	} else {
		parts = []*genai.Part{genai.NewPartFromText(prompt)}
	}

	contents := []*genai.Content{{Role: "user", Parts: parts}}
	cfg := &genai.GenerateContentConfig{
		ImageConfig: &genai.ImageConfig{
			AspectRatio: ratio,
			ImageSize:   string(size),
		},
	}

	resp, err := gemini.Retry(ctx, s.retry, "Image", func(ctx context.Context) (*genai.GenerateContentResponse, error) {
		return s.models.GenerateContent(ctx, s.model, contents, cfg)
	})
	if err != nil {
		return "", err
	}

	data, mimeType, ok := gemini.ResponseImage(resp)
	if !ok {
		return "", fmt.Errorf("no image data found in response")
	}
	return s.encode(data, mimeType), nil
}
