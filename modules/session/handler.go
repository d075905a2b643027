package session

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"omnipost-server/modules/common/model"
	"omnipost-server/modules/generation"
	"omnipost-server/modules/platform"
)

// Handler - 세션 단위 생성 API
type Handler struct {
	manager      *Manager
	orchestrator *generation.Orchestrator
}

// NewHandler - 핸들러 생성
func NewHandler(manager *Manager, orchestrator *generation.Orchestrator) *Handler {
	return &Handler{manager: manager, orchestrator: orchestrator}
}

// GenerateRequest - POST /api/sessions/{sessionId}/generate 요청 바디
type GenerateRequest struct {
	Idea           string                  `json:"idea"`
	Tone           model.Tone              `json:"tone"`
	ReferenceImage string                  `json:"referenceImage,omitempty"` // data URI
	Platforms      map[model.Platform]bool `json:"platforms"`
	IncludeVideo   bool                    `json:"includeVideo"`
	ImageSize      model.ImageSize         `json:"imageSize"`
	AspectRatio    model.AspectRatio       `json:"aspectRatio"`
	ImageCount     int                     `json:"imageCount"`
	Wait           bool                    `json:"wait"`
}

// DraftRequest - PUT /api/sessions/{sessionId}/draft 요청 바디
type DraftRequest struct {
	Idea           string `json:"idea"`
	ReferenceImage string `json:"referenceImage,omitempty"`
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sessions/{sessionId}/generate", h.HandleGenerate).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/cancel", h.HandleCancel).Methods("POST", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/draft", h.HandleDraft).Methods("PUT", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}/results/{platform}", h.HandleRemovePost).Methods("DELETE", "OPTIONS")
	r.HandleFunc("/api/sessions/{sessionId}", h.HandleGetSession).Methods("GET")

	log.Println("✅ [Session] Routes registered")
}

// HandleGenerate - 생성 시작. wait=true 면 settled 까지 기다려 최종 스냅샷 반환
func (h *Handler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	sessionID := mux.Vars(r)["sessionId"]

	var body GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	reference, err := model.ParseDataURI(body.ReferenceImage)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid reference image"})
		return
	}

	session := h.manager.GetOrCreate(sessionID)

	// 입력이 비어 있으면 저장된 입력 폼 사용
	if body.Idea == "" && reference == nil {
		draft := session.board.Draft()
		body.Idea = draft.Idea
		reference = draft.ReferenceImage
	}

	req := &model.GenerationRequest{
		Idea:           body.Idea,
		Tone:           body.Tone,
		ReferenceImage: reference,
		Platforms:      body.Platforms,
		IncludeVideo:   body.IncludeVideo,
		ImageSize:      body.ImageSize,
		AspectRatio:    body.AspectRatio,
		ImageCount:     body.ImageCount,
	}

	generationID, err := h.orchestrator.Begin(session.board, req)
	if err != nil {
		var precondition *generation.PreconditionError
		switch {
		case errors.As(err, &precondition):
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": precondition.Message})
		case errors.Is(err, generation.ErrGenerationInProgress):
			writeJSON(w, http.StatusConflict, map[string]interface{}{"error": err.Error()})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": err.Error()})
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	session.startGeneration(generationID, cancel)

	run := func() (*generation.Outcome, error) {
		defer func() {
			cancel()
			session.finishGeneration(generationID)
		}()
		outcome, err := h.orchestrator.Execute(ctx, session.board, generationID, req)
		h.manager.RecordGeneration(err != nil)
		return outcome, err
	}

	if !body.Wait {
		go run()
		writeJSON(w, http.StatusAccepted, map[string]interface{}{
			"success":      true,
			"generationId": generationID,
			"sessionId":    sessionID,
		})
		return
	}

	outcome, err := run()
	if err != nil {
		var fatal *generation.FatalError
		message := err.Error()
		if errors.As(err, &fatal) {
			message = fatal.Message
		}
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"error":        message,
			"generationId": generationID,
			"snapshot":     session.board.Snapshot(),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"generationId": generationID,
		"snapshot":     outcome.Snapshot,
	})
}

// HandleCancel - 실행 중인 생성 취소
func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	sessionID := mux.Vars(r)["sessionId"]
	session, ok := h.manager.Get(sessionID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "Session not found"})
		return
	}

	generationID, cancelled := session.Cancel()
	if !cancelled {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "No generation is running"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":      true,
		"generationId": generationID,
		"message":      "Generation cancelled",
	})
}

// HandleDraft - 입력 폼 저장
func (h *Handler) HandleDraft(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	var body DraftRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	reference, err := model.ParseDataURI(body.ReferenceImage)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Invalid reference image"})
		return
	}

	session := h.manager.GetOrCreate(mux.Vars(r)["sessionId"])
	session.board.SetDraft(model.Draft{Idea: body.Idea, ReferenceImage: reference})

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"draft":   session.board.Snapshot().Draft,
	})
}

// HandleRemovePost - 결과 카드 하나 제거
func (h *Handler) HandleRemovePost(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	vars := mux.Vars(r)
	info, ok := platform.Lookup(vars["platform"])
	if !ok {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "Unknown platform"})
		return
	}

	session := h.manager.GetOrCreate(vars["sessionId"])
	if !session.board.RemovePost(info.Key) {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "Result not found"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":  true,
		"snapshot": session.board.Snapshot(),
	})
}

// HandleGetSession - 현재 스냅샷 조회 (메모리 → 저장소 순)
func (h *Handler) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := mux.Vars(r)["sessionId"]

	snapshot, err := h.manager.LoadSnapshot(r.Context(), sessionID)
	if err != nil {
		if errors.Is(err, generation.ErrSnapshotNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"error": "Session not found"})
			return
		}
		log.Printf("❌ [Session] Failed to load snapshot %s: %v", sessionID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"error": "Failed to load session"})
		return
	}

	writeJSON(w, http.StatusOK, snapshot)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
