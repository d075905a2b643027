package utils

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg" // JPEG 디코더 등록
	_ "image/png"  // PNG 디코더 등록
	"log"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"

	"omnipost-server/modules/common/model"
)

// ConvertToWebP - PNG/JPEG 바이너리를 WebP로 변환
func ConvertToWebP(data []byte, quality float32) ([]byte, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	options, err := encoder.NewLossyEncoderOptions(encoder.PresetDefault, quality)
	if err != nil {
		return nil, fmt.Errorf("failed to create WebP encoder options: %w", err)
	}

	var webpBuffer bytes.Buffer
	if err := webp.Encode(&webpBuffer, img, options); err != nil {
		return nil, fmt.Errorf("failed to encode WebP: %w", err)
	}

	webpData := webpBuffer.Bytes()
	log.Printf("🔄 %s converted to WebP: %d bytes → %d bytes (%.1f%% reduction)",
		format, len(data), len(webpData),
		float64(len(data)-len(webpData))/float64(len(data))*100)

	return webpData, nil
}

// WebPDataURIEncoder - 이미지 유닛 출력 인코더 (WebP data URI). 변환 실패 시 원본 그대로 인코딩
func WebPDataURIEncoder(quality float32) func(data []byte, mimeType string) string {
	return func(data []byte, mimeType string) string {
		webpData, err := ConvertToWebP(data, quality)
		if err != nil {
			log.Printf("⚠️  WebP conversion failed, keeping %s: %v", mimeType, err)
			return model.FormatDataURI(mimeType, data)
		}
		return model.FormatDataURI("image/webp", webpData)
	}
}
