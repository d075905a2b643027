package model

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Platform - 게시 대상 플랫폼 키 (ResultSet 키와 동일)
type Platform string

const (
	PlatformLinkedIn  Platform = "linkedin"
	PlatformTwitter   Platform = "twitter"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformPinterest Platform = "pinterest"
	PlatformVideo     Platform = "video"
)

// Platforms - 등록된 플랫폼 키 전체
var Platforms = []Platform{
	PlatformLinkedIn, PlatformTwitter, PlatformInstagram, PlatformFacebook, PlatformPinterest, PlatformVideo,
}

// IsValid - 정규 키 여부 (대소문자 구분)
func (p Platform) IsValid() bool {
	for _, v := range Platforms {
		if v == p {
			return true
		}
	}
	return false
}

// Tone - 캡션 톤 (고정 어휘)
type Tone string

const (
	ToneProfessional  Tone = "Professional"
	ToneWitty         Tone = "Witty"
	ToneUrgent        Tone = "Urgent"
	ToneCasual        Tone = "Casual"
	ToneInspirational Tone = "Inspirational"
	ToneEmpathetic    Tone = "Empathetic"
	ToneLuxury        Tone = "Luxury"
	ToneMinimalist    Tone = "Minimalist"
	ToneBold          Tone = "Bold"
	ToneStorytelling  Tone = "Storytelling"
)

// Tones - 허용된 톤 목록 (UI 노출 순서)
var Tones = []Tone{
	ToneProfessional, ToneWitty, ToneUrgent, ToneCasual, ToneInspirational,
	ToneEmpathetic, ToneLuxury, ToneMinimalist, ToneBold, ToneStorytelling,
}

// IsValid - 톤 유효성 검사
func (t Tone) IsValid() bool {
	for _, v := range Tones {
		if v == t {
			return true
		}
	}
	return false
}

// ImageSize - 이미지 해상도 티어
type ImageSize string

const (
	ImageSize1K ImageSize = "1K"
	ImageSize2K ImageSize = "2K"
	ImageSize4K ImageSize = "4K"
)

// IsValid - 해상도 티어 유효성 검사
func (s ImageSize) IsValid() bool {
	return s == ImageSize1K || s == ImageSize2K || s == ImageSize4K
}

// AspectRatio - 전역 비율 오버라이드 ("Auto"는 플랫폼 기본값 사용)
type AspectRatio string

const (
	AspectRatioAuto      AspectRatio = "Auto"
	AspectRatioSquare    AspectRatio = "1:1"
	AspectRatioPortrait  AspectRatio = "3:4"
	AspectRatioLandscape AspectRatio = "4:3"
	AspectRatioWide      AspectRatio = "16:9"
	AspectRatioTall      AspectRatio = "9:16"
)

// IsValid - 오버라이드 값 유효성 검사
func (a AspectRatio) IsValid() bool {
	switch a {
	case AspectRatioAuto, AspectRatioSquare, AspectRatioPortrait, AspectRatioLandscape, AspectRatioWide, AspectRatioTall:
		return true
	}
	return false
}

const (
	DefaultImageCount = 1
	MaxImageCount     = 4
)

// ReferenceImage - 사용자가 업로드한 참조 이미지
type ReferenceImage struct {
	MimeType string
	Data     []byte
}

// ParseDataURI - "data:image/png;base64,...." 형식 파싱 (접두사 없으면 raw base64로 처리)
func ParseDataURI(value string) (*ReferenceImage, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}

	mimeType := "image/png"
	payload := value
	if strings.HasPrefix(value, "data:") {
		idx := strings.IndexByte(value, ',')
		if idx < 0 {
			return nil, fmt.Errorf("malformed data URI")
		}
		header := value[len("data:"):idx]
		payload = value[idx+1:]
		if semi := strings.IndexByte(header, ';'); semi >= 0 {
			header = header[:semi]
		}
		if header != "" {
			mimeType = header
		}
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	return &ReferenceImage{MimeType: mimeType, Data: data}, nil
}

// FormatDataURI - 바이너리를 data URI로 인코딩
func FormatDataURI(mimeType string, data []byte) string {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

// GenerationRequest - 사용자 1회 생성 요청 (오케스트레이터 전용, 생성 종료 후 폐기)
type GenerationRequest struct {
	Idea           string
	Tone           Tone
	ReferenceImage *ReferenceImage
	Platforms      map[Platform]bool
	IncludeVideo   bool
	ImageSize      ImageSize
	AspectRatio    AspectRatio
	ImageCount     int
}

// SelectedPlatforms - 선택된 텍스트 플랫폼 집합 (video 키와 미등록 키 제외)
func (r *GenerationRequest) SelectedPlatforms() map[Platform]bool {
	selected := make(map[Platform]bool)
	for p, on := range r.Platforms {
		if on && p != PlatformVideo && p.IsValid() {
			selected[p] = true
		}
	}
	return selected
}

// Normalize - 빈 값에 기본값 적용
func (r *GenerationRequest) Normalize() {
	r.Idea = strings.TrimSpace(r.Idea)
	if r.Tone == "" {
		r.Tone = ToneProfessional
	}
	if r.ImageSize == "" {
		r.ImageSize = ImageSize1K
	}
	if r.AspectRatio == "" {
		r.AspectRatio = AspectRatioAuto
	}
	if r.ImageCount <= 0 {
		r.ImageCount = DefaultImageCount
	}
	if r.ImageCount > MaxImageCount {
		r.ImageCount = MaxImageCount
	}
	if r.Platforms == nil {
		r.Platforms = map[Platform]bool{}
	}
}

// PlatformPost - 플랫폼별 생성 결과 카드
type PlatformPost struct {
	Platform    Platform `json:"platform"`
	Content     string   `json:"content"`
	Hashtags    []string `json:"hashtags"`
	ImageURLs   []string `json:"imageUrls"`
	ImagePrompt string   `json:"imagePrompt,omitempty"`
	AspectRatio string   `json:"aspectRatio"`
}

// Clone - 깊은 복사
func (p *PlatformPost) Clone() *PlatformPost {
	if p == nil {
		return nil
	}
	out := *p
	out.Hashtags = append([]string(nil), p.Hashtags...)
	if p.ImageURLs != nil {
		out.ImageURLs = append([]string{}, p.ImageURLs...)
	}
	return &out
}

// VideoPost - 영상 결과 카드 (성공 시에만 생성)
type VideoPost struct {
	URL     string `json:"url"`
	Prompt  string `json:"prompt"`
	Content string `json:"content,omitempty"`
}

// ResultSet - 플랫폼/비디오 키 -> 결과. 키가 있으면 해당 유닛이 성공한 것
type ResultSet struct {
	Posts map[Platform]*PlatformPost
	Video *VideoPost
}

// NewResultSet - 빈 결과셋 생성
func NewResultSet() *ResultSet {
	return &ResultSet{Posts: make(map[Platform]*PlatformPost)}
}

// Len - 존재하는 키 개수 (video 포함)
func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	n := len(r.Posts)
	if r.Video != nil {
		n++
	}
	return n
}

// Clone - 깊은 복사 (관찰자에게 넘길 때 사용)
func (r *ResultSet) Clone() *ResultSet {
	if r == nil {
		return nil
	}
	out := NewResultSet()
	for k, v := range r.Posts {
		out.Posts[k] = v.Clone()
	}
	if r.Video != nil {
		v := *r.Video
		out.Video = &v
	}
	return out
}

// MarshalJSON - {"linkedin": {...}, "video": {...}} 형태의 평탄한 맵으로 직렬화
func (r *ResultSet) MarshalJSON() ([]byte, error) {
	flat := make(map[string]interface{}, r.Len())
	for k, v := range r.Posts {
		flat[string(k)] = v
	}
	if r.Video != nil {
		flat[string(PlatformVideo)] = r.Video
	}
	return json.Marshal(flat)
}

// UnmarshalJSON - MarshalJSON 역변환
func (r *ResultSet) UnmarshalJSON(data []byte) error {
	var flat map[string]json.RawMessage
	if err := json.Unmarshal(data, &flat); err != nil {
		return err
	}
	r.Posts = make(map[Platform]*PlatformPost)
	r.Video = nil
	for k, raw := range flat {
		if Platform(k) == PlatformVideo {
			var v VideoPost
			if err := json.Unmarshal(raw, &v); err != nil {
				return fmt.Errorf("video: %w", err)
			}
			r.Video = &v
			continue
		}
		var p PlatformPost
		if err := json.Unmarshal(raw, &p); err != nil {
			return fmt.Errorf("%s: %w", k, err)
		}
		r.Posts[Platform(k)] = &p
	}
	return nil
}

// Phase - 오케스트레이터 상태
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseValidating Phase = "validating"
	PhaseText       Phase = "text"
	PhaseFanout     Phase = "fanout"
	PhaseSettled    Phase = "settled"
)

// Draft - 입력 폼 상태 (생성 성공 시 비워짐)
type Draft struct {
	Idea           string          `json:"idea"`
	ReferenceImage *ReferenceImage `json:"-"`
	HasImage       bool            `json:"hasImage"`
}

// Snapshot - 보드 상태 직렬화 뷰 (WebSocket / Redis 전달용)
type Snapshot struct {
	SessionID       string     `json:"sessionId"`
	GenerationID    string     `json:"generationId,omitempty"`
	Phase           Phase      `json:"phase"`
	Results         *ResultSet `json:"results"`
	Error           string     `json:"error,omitempty"`
	Warning         string     `json:"warning,omitempty"`
	Generating      bool       `json:"generating"`
	VideoGenerating bool       `json:"videoGenerating"`
	PendingImages   []Platform `json:"pendingImages,omitempty"`
	Draft           Draft      `json:"draft"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}
