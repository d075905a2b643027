package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// NewClient - 설정된 백엔드(Gemini API / Vertex AI)로 genai 클라이언트 생성
func NewClient(ctx context.Context, cfg *config.Config) (*genai.Client, error) {
	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}

	if cfg.GeminiBackend == config.BackendVertex {
		creds, err := VertexCredentials(cfg)
		if err != nil {
			return nil, err
		}
		clientConfig = &genai.ClientConfig{
			Project:     cfg.GoogleProject,
			Location:    cfg.GoogleLocation,
			Backend:     genai.BackendVertexAI,
			Credentials: creds,
		}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if cfg.GeminiBackend == config.BackendVertex {
		log.Printf("✅ [Gemini] Client initialized (vertex project=%s, location=%s)", cfg.GoogleProject, cfg.GoogleLocation)
	} else {
		log.Printf("✅ [Gemini] Client initialized (Gemini API)")
	}
	return client, nil
}

// VertexCredentials - 서비스 계정 JSON(환경변수 → 파일) 로드. 둘 다 없으면 nil (ADC 사용)
func VertexCredentials(cfg *config.Config) (*auth.Credentials, error) {
	var credsJSON []byte

	switch {
	case cfg.VertexCredentialsJSON != "":
		log.Println("✅ [Gemini] Using VERTEXAI_CREDENTIALS_JSON from environment")
		credsJSON = []byte(cfg.VertexCredentialsJSON)
	case cfg.VertexCredentialsPath != "":
		log.Printf("✅ [Gemini] Using credentials from file: %s", cfg.VertexCredentialsPath)
		data, err := os.ReadFile(cfg.VertexCredentialsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read credentials file: %w", err)
		}
		credsJSON = data
	default:
		log.Println("⚠️  [Gemini] No explicit credentials found, using Application Default Credentials")
		return nil, nil
	}

	if !json.Valid(credsJSON) {
		return nil, fmt.Errorf("invalid JSON credentials")
	}

	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		Scopes:          []string{cloudPlatformScope},
		CredentialsJSON: credsJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load Vertex AI credentials: %w", err)
	}
	return creds, nil
}
