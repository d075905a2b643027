package waitlist

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

type Handler struct {
	service *Service
}

// NewHandler - 핸들러 생성
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes - 라우트 등록
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/waitlist", h.HandleJoin).Methods("POST", "OPTIONS")
	log.Println("✅ [Waitlist] Routes registered")
}

// HandleJoin - 대기자 명단 등록
func (h *Handler) HandleJoin(w http.ResponseWriter, r *http.Request) {
	if r.Method == "OPTIONS" {
		return
	}

	var req Entry
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
		return
	}

	alreadyJoined, err := h.service.Join(req.Name, req.Email)
	w.Header().Set("Content-Type", "application/json")

	if err != nil {
		var validation *ValidationError
		status := http.StatusInternalServerError
		message := "Something went wrong. Please try again."
		switch {
		case errors.As(err, &validation):
			status, message = http.StatusBadRequest, validation.Message
		case errors.Is(err, ErrNotConfigured):
			status = http.StatusServiceUnavailable
		default:
			log.Printf("❌ [Waitlist] %v", err)
		}
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(map[string]interface{}{"error": message})
		return
	}

	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":       true,
		"alreadyJoined": alreadyJoined,
	})
}
