// Package geminitest - genai 응답 페이크 (테스트 전용)
package geminitest

import "google.golang.org/genai"

// TextResponse - 텍스트 파트 하나짜리 응답
func TextResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{Text: text}}}},
		},
	}
}

// ImageResponse - 인라인 이미지 파트 하나짜리 응답
func ImageResponse(data []byte, mimeType string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Role: "model", Parts: []*genai.Part{{InlineData: &genai.Blob{Data: data, MIMEType: mimeType}}}}},
		},
	}
}
