package platform

import (
	"strings"

	"omnipost-server/modules/common/model"
)

// Info - 플랫폼 메타데이터
type Info struct {
	Key                model.Platform `json:"key"`
	Name               string         `json:"name"`
	DefaultAspectRatio string         `json:"defaultAspectRatio"`
	StyleGuide         string         `json:"styleGuide,omitempty"`
	ImageHint          string         `json:"imageHint,omitempty"`
}

// registry 순서가 곧 fan-out / 비디오 프롬프트 선택 순서
var registry = []Info{
	{
		Key:                model.PlatformLinkedIn,
		Name:               "LinkedIn",
		DefaultAspectRatio: "4:5",
		StyleGuide:         "Professional, long-form, insightful.",
		ImageHint:          "A detailed prompt to generate a photorealistic image for this post.",
	},
	{
		Key:                model.PlatformTwitter,
		Name:               "X",
		DefaultAspectRatio: "16:9",
		StyleGuide:         "Short, punchy, under 280 characters, no hashtags in body (maybe 1 at end).",
		ImageHint:          "A detailed prompt to generate a minimalist or punchy image.",
	},
	{
		Key:                model.PlatformInstagram,
		Name:               "Instagram",
		DefaultAspectRatio: "1:1",
		StyleGuide:         "Visual description implied in caption, engaging, casual, include 10-15 relevant hashtags.",
		ImageHint:          "A highly aesthetic, instagram-worthy image prompt.",
	},
	{
		Key:                model.PlatformFacebook,
		Name:               "Facebook",
		DefaultAspectRatio: "1:1",
		StyleGuide:         "Conversational, community-focused, moderate length, 3-5 hashtags.",
		ImageHint:          "A detailed prompt to generate an engaging, community-focused image.",
	},
	{
		Key:                model.PlatformPinterest,
		Name:               "Pinterest",
		DefaultAspectRatio: "2:3",
		StyleGuide:         "Descriptive, keyword-rich for searchability, inspiring, 5-8 hashtags.",
		ImageHint:          "A highly visual, inspiring, vertical image prompt.",
	},
	{
		Key:                model.PlatformVideo,
		Name:               "Video Reels",
		DefaultAspectRatio: "9:16",
	},
}

// All - 비디오 채널 포함 전체 목록
func All() []Info {
	out := make([]Info, len(registry))
	copy(out, registry)
	return out
}

// TextPlatforms - 캡션/이미지를 생성하는 5개 소셜 플랫폼
func TextPlatforms() []Info {
	out := make([]Info, 0, len(registry)-1)
	for _, info := range registry {
		if info.Key != model.PlatformVideo {
			out = append(out, info)
		}
	}
	return out
}

// Lookup - 키 또는 표시 이름으로 조회 (대소문자 무시)
func Lookup(name string) (Info, bool) {
	name = strings.TrimSpace(name)
	for _, info := range registry {
		if strings.EqualFold(string(info.Key), name) || strings.EqualFold(info.Name, name) {
			return info, true
		}
	}
	// "Twitter/X", "twitter_x" 처럼 모델이 흔히 섞어 쓰는 표기
	switch strings.ToLower(name) {
	case "twitter/x", "x/twitter", "twitter_x", "x (twitter)":
		return registry[1], true
	}
	return Info{}, false
}

// DefaultAspectRatio - 플랫폼 기본 비율 (미등록이면 1:1)
func DefaultAspectRatio(p model.Platform) string {
	if info, ok := Lookup(string(p)); ok {
		return info.DefaultAspectRatio
	}
	return "1:1"
}

// StyleGuide - 플랫폼별 캡션 스타일 가이드
func StyleGuide(p model.Platform) string {
	if info, ok := Lookup(string(p)); ok {
		return info.StyleGuide
	}
	return ""
}

// Canonical - 선택 맵의 키를 registry 키로 정규화 (미등록 키와 false 값은 제외)
func Canonical(selected map[model.Platform]bool) map[model.Platform]bool {
	out := make(map[model.Platform]bool, len(selected))
	for name, on := range selected {
		if !on {
			continue
		}
		if info, ok := Lookup(string(name)); ok {
			out[info.Key] = true
		}
	}
	return out
}

// Ordered - 선택 집합을 registry 순서로 정렬
func Ordered(selected map[model.Platform]bool) []model.Platform {
	out := make([]model.Platform, 0, len(selected))
	for _, info := range registry {
		if selected[info.Key] {
			out = append(out, info.Key)
		}
	}
	return out
}
