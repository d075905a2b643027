package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"omnipost-server/modules/common/config"
)

// BlobStore - 생성된 바이너리(영상)를 재생 가능한 URL로 만드는 저장소
type BlobStore interface {
	Put(ctx context.Context, data []byte, contentType string) (string, error)
}

// Blob - 메모리에 보관된 바이너리
type Blob struct {
	ID          string
	ContentType string
	Data        []byte
	CreatedAt   time.Time
}

// MemoryStore - 프로세스 메모리 blob 저장소 (/api/blobs/{id} 로 서빙)
type MemoryStore struct {
	mu      sync.RWMutex
	blobs   map[string]*Blob
	urlBase string
}

// NewMemoryStore - urlBase 예: "/api/blobs"
func NewMemoryStore(urlBase string) *MemoryStore {
	return &MemoryStore{
		blobs:   make(map[string]*Blob),
		urlBase: strings.TrimRight(urlBase, "/"),
	}
}

// Put - blob 저장 후 로컬 URL 반환
func (s *MemoryStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty blob")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.New().String()
	s.mu.Lock()
	s.blobs[id] = &Blob{
		ID:          id,
		ContentType: contentType,
		Data:        data,
		CreatedAt:   time.Now(),
	}
	s.mu.Unlock()

	log.Printf("📦 [Blob] Stored %s (%d bytes, %s)", id, len(data), contentType)
	return s.urlBase + "/" + id, nil
}

// Get - ID로 blob 조회
func (s *MemoryStore) Get(id string) (*Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[id]
	return blob, ok
}

// Cleanup - maxAge 보다 오래된 blob 삭제, 삭제 개수 반환
func (s *MemoryStore) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, blob := range s.blobs {
		if blob.CreatedAt.Before(cutoff) {
			delete(s.blobs, id)
			removed++
		}
	}
	if removed > 0 {
		log.Printf("🧹 [Blob] Cleaned up %d expired blobs", removed)
	}
	return removed
}

// ServeBlob - blob을 HTTP 응답으로 작성
func (s *MemoryStore) ServeBlob(w http.ResponseWriter, r *http.Request, id string) {
	blob, ok := s.Get(id)
	if !ok {
		http.Error(w, "blob not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", blob.ContentType)
	http.ServeContent(w, r, blob.ID, blob.CreatedAt, bytes.NewReader(blob.Data))
}

// SupabaseStore - Supabase Storage 업로드 (공개 버킷 URL 반환)
type SupabaseStore struct {
	baseURL    string
	serviceKey string
	bucket     string
	httpClient *http.Client
}

// NewSupabaseStore - Storage 클라이언트 생성
func NewSupabaseStore(cfg *config.Config, httpClient *http.Client) *SupabaseStore {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &SupabaseStore{
		baseURL:    strings.TrimRight(cfg.SupabaseURL, "/"),
		serviceKey: cfg.SupabaseServiceKey,
		bucket:     cfg.SupabaseVideoBucket,
		httpClient: httpClient,
	}
}

// Put - Supabase Storage에 업로드
func (s *SupabaseStore) Put(ctx context.Context, data []byte, contentType string) (string, error) {
	filePath := fmt.Sprintf("generated-videos/%s/%s%s", time.Now().Format("20060102"), uuid.New().String(), extensionFor(contentType))

	log.Printf("📤 [Blob] Uploading to storage: %s/%s", s.bucket, filePath)

	uploadURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, s.bucket, filePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.serviceKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to upload blob: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	publicURL := fmt.Sprintf("%s/storage/v1/object/public/%s/%s", s.baseURL, s.bucket, filePath)
	log.Printf("✅ [Blob] Uploaded %d bytes: %s", len(data), publicURL)
	return publicURL, nil
}

func extensionFor(contentType string) string {
	switch contentType {
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	}
	if exts, err := mime.ExtensionsByType(contentType); err == nil && len(exts) > 0 {
		return exts[0]
	}
	return ".bin"
}
