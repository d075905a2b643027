package prompt

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"omnipost-server/modules/common/model"
)

// Handler - 프롬프트 개선 API
type Handler struct {
	service *Service
}

// NewHandler - 핸들러 생성 (service 가 nil 이면 아이디어를 그대로 돌려줌)
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RefineRequest - POST /api/prompt/refine 요청 바디
type RefineRequest struct {
	Idea           string `json:"idea"`
	ReferenceImage string `json:"referenceImage,omitempty"`
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/prompt/refine", h.HandleRefine).Methods("POST", "OPTIONS")
	log.Println("✅ [Prompt] Routes registered")
}

// HandleRefine - 아이디어 개선. 실패해도 원래 아이디어로 200 응답
func (h *Handler) HandleRefine(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	var req RefineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	idea := strings.TrimSpace(req.Idea)
	if idea == "" {
		http.Error(w, `{"error": "idea is required"}`, http.StatusBadRequest)
		return
	}

	reference, err := model.ParseDataURI(req.ReferenceImage)
	if err != nil {
		http.Error(w, `{"error": "Invalid reference image"}`, http.StatusBadRequest)
		return
	}

	refined := h.service.Refine(r.Context(), idea, reference)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success": true,
		"prompt":  refined,
		"refined": refined != idea,
	})
}
