package platform

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/mux"

	"omnipost-server/modules/common/model"
)

// RegisterRoutes - 플랫폼/옵션 카탈로그 라우트 등록
func RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/platforms", HandleCatalog).Methods("GET")
	log.Println("✅ [Platform] Routes registered")
}

// HandleCatalog - 플랫폼 목록과 선택 가능한 옵션
func HandleCatalog(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"platforms":    All(),
		"tones":        model.Tones,
		"imageSizes":   []model.ImageSize{model.ImageSize1K, model.ImageSize2K, model.ImageSize4K},
		"aspectRatios": []model.AspectRatio{model.AspectRatioAuto, model.AspectRatioSquare, model.AspectRatioPortrait, model.AspectRatioLandscape, model.AspectRatioWide, model.AspectRatioTall},
		"maxImages":    model.MaxImageCount,
	})
}
