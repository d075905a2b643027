package video

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/storage"
)

const (
	promptPrefix = "Cinematic, high quality video about: "
	resolution   = "720p"
	aspectRatio  = "9:16"
)

// VideoModels - genai.Models 중 사용하는 부분
type VideoModels interface {
	GenerateVideos(ctx context.Context, model string, prompt string, image *genai.Image, config *genai.GenerateVideosConfig) (*genai.GenerateVideosOperation, error)
}

// OperationPoller - genai.Operations 중 사용하는 부분
type OperationPoller interface {
	GetVideosOperation(ctx context.Context, operation *genai.GenerateVideosOperation, config *genai.GetOperationConfig) (*genai.GenerateVideosOperation, error)
}

// Error - 영상 생성 실패
type Error struct {
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("video generation failed: %s: %v", e.Message, e.Err)
	}
	return "video generation failed: " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

type Service struct {
	models       VideoModels
	operations   OperationPoller
	blobs        storage.BlobStore
	httpClient   *http.Client
	model        string
	apiKey       string
	pollInterval time.Duration
	maxPolls     int
	retry        gemini.RetryPolicy
}

// NewService - 영상 생성 서비스 생성
func NewService(models VideoModels, operations OperationPoller, blobs storage.BlobStore, httpClient *http.Client, cfg *config.Config) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Minute}
	}
	pollInterval := cfg.VideoPollInterval
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Service{
		models:       models,
		operations:   operations,
		blobs:        blobs,
		httpClient:   httpClient,
		model:        cfg.GeminiVideoModel,
		apiKey:       cfg.GeminiAPIKey,
		pollInterval: pollInterval,
		maxPolls:     cfg.VideoMaxPolls,
		retry:        gemini.RetryPolicy{MaxAttempts: cfg.RetryMaxAttempts, Backoff: cfg.RetryBackoff},
	}
}

// Generate - 영상 작업 제출 → 폴링 → 다운로드 → 재생 가능한 URL 반환
func (s *Service) Generate(ctx context.Context, prompt string) (string, error) {
	fullPrompt := promptPrefix + prompt
	log.Printf("🎬 [Video] Submitting job (model: %s, %s, %s)", s.model, resolution, aspectRatio)

	videoConfig := &genai.GenerateVideosConfig{
		NumberOfVideos: 1,
		Resolution:     resolution,
		AspectRatio:    aspectRatio,
	}

	op, err := gemini.Retry(ctx, s.retry, "Video", func(ctx context.Context) (*genai.GenerateVideosOperation, error) {
		return s.models.GenerateVideos(ctx, s.model, fullPrompt, nil, videoConfig)
	})
	if err != nil {
		return "", err
	}

	op, err = s.waitForCompletion(ctx, op)
	if err != nil {
		return "", err
	}

	if len(op.Error) > 0 {
		return "", &Error{Message: fmt.Sprintf("operation error: %v", op.Error)}
	}
	if op.Response == nil || len(op.Response.GeneratedVideos) == 0 ||
		op.Response.GeneratedVideos[0] == nil || op.Response.GeneratedVideos[0].Video == nil {
		return "", &Error{Message: "no link returned"}
	}

	video := op.Response.GeneratedVideos[0].Video
	data, contentType := video.VideoBytes, video.MIMEType
	if len(data) == 0 {
		if video.URI == "" {
			return "", &Error{Message: "no link returned"}
		}
		data, contentType, err = s.download(ctx, video.URI)
		if err != nil {
			return "", err
		}
	}
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "video/mp4"
	}

	blobURL, err := s.blobs.Put(ctx, data, contentType)
	if err != nil {
		return "", &Error{Message: "failed to store video", Err: err}
	}

	log.Printf("✅ [Video] Video ready: %s (%d bytes)", blobURL, len(data))
	return blobURL, nil
}

// waitForCompletion - 작업 완료까지 pollInterval 간격으로 폴링 (maxPolls 초과 시 실패)
func (s *Service) waitForCompletion(ctx context.Context, op *genai.GenerateVideosOperation) (*genai.GenerateVideosOperation, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for attempt := 1; !op.Done; attempt++ {
		if attempt > s.maxPolls {
			return nil, &Error{Message: fmt.Sprintf("timed out after %d polls", s.maxPolls)}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}

		current := op
		next, err := gemini.Retry(ctx, s.retry, "Video", func(ctx context.Context) (*genai.GenerateVideosOperation, error) {
			return s.operations.GetVideosOperation(ctx, current, nil)
		})
		if err != nil {
			return nil, err
		}
		op = next

		if attempt%6 == 0 {
			log.Printf("⏳ [Video] Still rendering (poll %d/%d)", attempt, s.maxPolls)
		}
	}
	return op, nil
}

// download - API 키를 붙여 결과 영상 바이너리 다운로드
func (s *Service) download(ctx context.Context, uri string) ([]byte, string, error) {
	downloadURL, err := url.Parse(uri)
	if err != nil {
		return nil, "", &Error{Message: "invalid download link", Err: err}
	}
	if s.apiKey != "" {
		q := downloadURL.Query()
		q.Set("key", s.apiKey)
		downloadURL.RawQuery = q.Encode()
	}

	type fetched struct {
		data        []byte
		contentType string
	}

	result, err := gemini.Retry(ctx, s.retry, "Video", func(ctx context.Context) (fetched, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL.String(), nil)
		if err != nil {
			return fetched{}, err
		}
		resp, err := s.httpClient.Do(req)
		if err != nil {
			return fetched{}, err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return fetched{}, fmt.Errorf("download returned status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fetched{}, err
		}
		return fetched{data: data, contentType: resp.Header.Get("Content-Type")}, nil
	})
	if err != nil {
		return nil, "", &Error{Message: "failed to download video", Err: err}
	}
	if len(result.data) == 0 {
		return nil, "", &Error{Message: "downloaded video is empty"}
	}
	return result.data, result.contentType, nil
}
