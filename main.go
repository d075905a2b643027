package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"google.golang.org/genai"

	"omnipost-server/modules/common/config"
	"omnipost-server/modules/common/database"
	"omnipost-server/modules/common/gemini"
	"omnipost-server/modules/common/redis"
	"omnipost-server/modules/common/storage"
	"omnipost-server/modules/common/utils"
	"omnipost-server/modules/generation"
	"omnipost-server/modules/image"
	"omnipost-server/modules/platform"
	"omnipost-server/modules/prompt"
	"omnipost-server/modules/session"
	"omnipost-server/modules/text"
	"omnipost-server/modules/video"
	"omnipost-server/modules/waitlist"
)

const (
	blobURLBase  = "/api/blobs"
	webpQuality  = 90
	blobSweepGap = time.Hour
)

// CORS 헤더 추가
func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// 헬스 체크 엔드포인트
func healthCheck(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":        "healthy",
			"service":       "omnipost-server",
			"hasCredential": cfg.HasCredential(),
			"redis":         cfg.RedisEnabled(),
		})
	}
}

// 서버 메트릭 조회 엔드포인트
func getMetrics(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		metrics, sessions := manager.Metrics()

		currentClients := 0
		for _, s := range sessions {
			currentClients += s.ClientCount
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"server": map[string]interface{}{
				"uptime":            time.Since(metrics.StartTime).String(),
				"startTime":         metrics.StartTime,
				"totalSessions":     metrics.TotalSessions,
				"activeSessions":    metrics.ActiveSessions,
				"totalConnections":  metrics.TotalConnections,
				"totalGenerations":  metrics.TotalGenerations,
				"failedGenerations": metrics.FailedGenerations,
				"currentClients":    currentClients,
			},
			"sessions": sessions,
		})
	}
}

// 모든 세션 강제 정리 (관리자용)
func forceCleanupSessions(manager *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		empty := manager.CleanupEmptySessions()
		expired := manager.CleanupExpiredSessions()

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":  "Cleanup completed",
			"empty":   empty,
			"expired": expired,
		})
	}
}

// 메모리 blob 주기적 정리
func startBlobSweeper(ctx context.Context, blobs *storage.MemoryStore, maxAge time.Duration) {
	go func() {
		ticker := time.NewTicker(blobSweepGap)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if removed := blobs.Cleanup(maxAge); removed > 0 {
					log.Printf("🧹 Removed %d expired blobs", removed)
				}
			}
		}
	}()
}

func main() {
	// 환경변수 로드
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 스냅샷 저장소 (Redis 우선)
	var snapshots generation.SnapshotStore = generation.NewMemoryStore()
	rdb, err := redis.Connect(ctx, cfg)
	switch {
	case err != nil:
		log.Printf("❌ %v - snapshots kept in memory", err)
	case rdb == nil:
		log.Printf("ℹ️  Redis not configured - snapshots kept in memory")
	default:
		defer rdb.Close()
		snapshots = generation.NewRedisStore(rdb, cfg.SnapshotTTL)
	}

	// 영상 blob 저장소 (Supabase 버킷 우선)
	memoryBlobs := storage.NewMemoryStore(blobURLBase)
	var blobs storage.BlobStore = memoryBlobs
	if cfg.SupabaseEnabled() && cfg.SupabaseVideoBucket != "" {
		blobs = storage.NewSupabaseStore(cfg, nil)
		log.Printf("📦 Videos uploaded to Supabase bucket: %s", cfg.SupabaseVideoBucket)
	}

	var imageEncoder image.Encoder
	if cfg.ImageOutputFormat == config.OutputFormatWebP {
		imageEncoder = utils.WebPDataURIEncoder(webpQuality)
	}

	// 생성 유닛 (자격 증명이 있을 때만 원격 클라이언트 생성)
	var (
		promptService *prompt.Service
		textService   generation.TextGenerator
		imageService  generation.ImageGenerator
		videoService  generation.VideoGenerator
	)
	if cfg.HasCredential() {
		var client *genai.Client
		client, err = gemini.NewClient(ctx, cfg)
		if err != nil {
			log.Fatalf("❌ Failed to create Gemini client: %v", err)
		}
		promptService = prompt.NewService(client.Models, cfg)
		textService = text.NewService(client.Models, cfg)
		imageService = image.NewService(client.Models, cfg, imageEncoder)
		videoService = video.NewService(client.Models, client.Operations, blobs, nil, cfg)
		log.Printf("✅ Gemini client ready (backend: %s)", cfg.GeminiBackend)
	} else {
		log.Printf("⚠️  No API credential configured - generation requests will be rejected")
	}

	orchestrator := generation.NewOrchestrator(cfg, textService, imageService, videoService, cfg.GenerationTimeout)

	// 대기자 명단 (Supabase)
	var inserter waitlist.RowInserter
	dbClient, err := database.NewClient(cfg)
	if err != nil {
		log.Printf("⚠️  %v", err)
	} else if dbClient != nil {
		inserter = dbClient
	}

	// 세션 매니저 + 정리 루틴 시작
	manager := session.NewManager(snapshots)
	manager.StartCleanupRoutine(ctx)
	startBlobSweeper(ctx, memoryBlobs, cfg.SnapshotTTL)

	// 라우터 설정
	r := mux.NewRouter()

	// CORS 미들웨어 적용
	r.Use(enableCORS)

	// 라우트 설정
	r.HandleFunc("/", healthCheck(cfg)).Methods("GET")
	r.HandleFunc("/health", healthCheck(cfg)).Methods("GET")
	r.HandleFunc("/ws", manager.HandleWebSocket)
	r.HandleFunc("/metrics", getMetrics(manager)).Methods("GET")
	r.HandleFunc("/admin/cleanup", forceCleanupSessions(manager)).Methods("POST")
	r.HandleFunc(blobURLBase+"/{blobId}", func(w http.ResponseWriter, r *http.Request) {
		memoryBlobs.ServeBlob(w, r, mux.Vars(r)["blobId"])
	}).Methods("GET")

	platform.RegisterRoutes(r)
	prompt.NewHandler(promptService).RegisterRoutes(r)
	session.NewHandler(manager, orchestrator).RegisterRoutes(r)
	waitlist.NewHandler(waitlist.NewService(inserter, cfg.WaitlistTable)).RegisterRoutes(r)

	port := cfg.Port

	log.Printf("🚀 OmniPost Server starting on port %s", port)
	log.Printf("📡 WebSocket endpoint: ws://localhost:%s/ws", port)
	log.Printf("❤️  Health check: http://localhost:%s/health", port)
	log.Printf("📊 Metrics: http://localhost:%s/metrics", port)
	log.Printf("🧹 Admin cleanup: http://localhost:%s/admin/cleanup", port)

	server := &http.Server{Addr: ":" + port, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	// 서버 시작
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Server failed to start: %v", err)
	}
	log.Printf("👋 Server stopped")
}
