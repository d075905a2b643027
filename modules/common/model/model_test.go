package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDataURI(t *testing.T) {
	img, err := ParseDataURI("data:image/jpeg;base64,/9j/")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", img.MimeType)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff}, img.Data)
	assert.Equal(t, "data:image/jpeg;base64,/9j/", FormatDataURI(img.MimeType, img.Data))

	img, err = ParseDataURI("/9j/")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)

	img, err = ParseDataURI("data:;base64,/9j/")
	require.NoError(t, err)
	assert.Equal(t, "image/png", img.MimeType)

	img, err = ParseDataURI("  ")
	assert.NoError(t, err)
	assert.Nil(t, img)

	_, err = ParseDataURI("data:image/png;base64")
	assert.Error(t, err)

	_, err = ParseDataURI("data:image/png;base64,@@@")
	assert.Error(t, err)
}

func TestGenerationRequest_Normalize(t *testing.T) {
	req := GenerationRequest{Idea: "  espresso  ", ImageCount: 12}
	req.Normalize()

	assert.Equal(t, "espresso", req.Idea)
	assert.Equal(t, ToneProfessional, req.Tone)
	assert.Equal(t, ImageSize1K, req.ImageSize)
	assert.Equal(t, AspectRatioAuto, req.AspectRatio)
	assert.Equal(t, MaxImageCount, req.ImageCount)
	assert.NotNil(t, req.Platforms)

	req = GenerationRequest{ImageCount: -1}
	req.Normalize()
	assert.Equal(t, DefaultImageCount, req.ImageCount)
}

func TestGenerationRequest_SelectedPlatformsExcludesVideo(t *testing.T) {
	req := GenerationRequest{Platforms: map[Platform]bool{
		PlatformLinkedIn: true,
		PlatformTwitter:  false,
		PlatformVideo:    true,
	}}
	assert.Equal(t, map[Platform]bool{PlatformLinkedIn: true}, req.SelectedPlatforms())
}

func TestGenerationRequest_SelectedPlatformsDropsUnknownKeys(t *testing.T) {
	req := GenerationRequest{Platforms: map[Platform]bool{
		"tiktok":   true,
		"LinkedIn": true,
	}}
	assert.Empty(t, req.SelectedPlatforms())
}

func TestResultSet_JSONIsFlat(t *testing.T) {
	rs := NewResultSet()
	rs.Posts[PlatformLinkedIn] = &PlatformPost{Platform: PlatformLinkedIn, Content: "hello", Hashtags: []string{"#a"}, ImageURLs: []string{}, AspectRatio: "4:5"}
	rs.Video = &VideoPost{URL: "/api/blobs/1", Prompt: "p", Content: "hello"}

	data, err := json.Marshal(rs)
	require.NoError(t, err)

	var flat map[string]map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Len(t, flat, 2)
	assert.Equal(t, "hello", flat["linkedin"]["content"])
	assert.Equal(t, "4:5", flat["linkedin"]["aspectRatio"])
	assert.Equal(t, "/api/blobs/1", flat["video"]["url"])

	var decoded ResultSet
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, 2, decoded.Len())
	assert.Equal(t, "/api/blobs/1", decoded.Video.URL)
	assert.Equal(t, []string{"#a"}, decoded.Posts[PlatformLinkedIn].Hashtags)
}

func TestSnapshot_NilResultsEncodeAsNull(t *testing.T) {
	data, err := json.Marshal(Snapshot{SessionID: "s", Phase: PhaseIdle})
	require.NoError(t, err)
	assert.Contains(t, string(data), `"results":null`)
}

func TestResultSet_CloneIsIndependent(t *testing.T) {
	rs := NewResultSet()
	rs.Posts[PlatformTwitter] = &PlatformPost{Content: "a", ImageURLs: []string{"x"}}

	clone := rs.Clone()
	clone.Posts[PlatformTwitter].ImageURLs[0] = "y"
	clone.Posts[PlatformTwitter].Content = "b"

	assert.Equal(t, "a", rs.Posts[PlatformTwitter].Content)
	assert.Equal(t, "x", rs.Posts[PlatformTwitter].ImageURLs[0])

	var nilSet *ResultSet
	assert.Nil(t, nilSet.Clone())
	assert.Zero(t, nilSet.Len())
}

func TestToneIsValid(t *testing.T) {
	assert.True(t, ToneStorytelling.IsValid())
	assert.False(t, Tone("Sarcastic").IsValid())
	assert.Len(t, Tones, 10)
}
