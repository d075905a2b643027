package session

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnipost-server/modules/common/model"
	"omnipost-server/modules/generation"
	"omnipost-server/modules/image"
)

type fakeCreds bool

func (f fakeCreds) HasCredential() bool { return bool(f) }

type fakeText struct {
	mu    sync.Mutex
	ideas []string
}

func (f *fakeText) Generate(ctx context.Context, idea string, tone model.Tone, selected map[model.Platform]bool) (map[model.Platform]*model.PlatformPost, error) {
	f.mu.Lock()
	f.ideas = append(f.ideas, idea)
	f.mu.Unlock()

	posts := make(map[model.Platform]*model.PlatformPost)
	for p := range selected {
		posts[p] = &model.PlatformPost{Content: "post for " + string(p), ImagePrompt: "prompt " + string(p), AspectRatio: "1:1"}
	}
	return posts, nil
}

func (f *fakeText) lastIdea() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ideas) == 0 {
		return ""
	}
	return f.ideas[len(f.ideas)-1]
}

type fakeImages struct{}

func (fakeImages) Generate(ctx context.Context, req image.Request) []string {
	return []string{"data:image/png;base64,AAA"}
}

// blockingVideo - ctx 취소 전까지 대기
type blockingVideo struct {
	started chan struct{}
}

func (v *blockingVideo) Generate(ctx context.Context, prompt string) (string, error) {
	close(v.started)
	<-ctx.Done()
	return "", ctx.Err()
}

type instantVideo struct{}

func (instantVideo) Generate(ctx context.Context, prompt string) (string, error) {
	return "/api/blobs/video-1", nil
}

func newTestServer(t *testing.T, creds bool, video generation.VideoGenerator, store generation.SnapshotStore) (*Manager, *fakeText, *mux.Router) {
	t.Helper()
	text := &fakeText{}
	orch := generation.NewOrchestrator(fakeCreds(creds), text, fakeImages{}, video, time.Minute)
	manager := NewManager(store)
	r := mux.NewRouter()
	NewHandler(manager, orch).RegisterRoutes(r)
	r.HandleFunc("/ws", manager.HandleWebSocket)
	return manager, text, r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

func TestHandleGenerate_WaitReturnsSettledSnapshot(t *testing.T) {
	_, _, r := newTestServer(t, true, instantVideo{}, nil)

	rec, body := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":         "espresso",
		"tone":         "Witty",
		"platforms":    map[string]bool{"linkedin": true, "instagram": true},
		"includeVideo": true,
		"wait":         true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	snapshot := body["snapshot"].(map[string]interface{})
	assert.Equal(t, "settled", snapshot["phase"])
	assert.Equal(t, false, snapshot["generating"])

	results := snapshot["results"].(map[string]interface{})
	assert.Len(t, results, 3)
	linkedin := results["linkedin"].(map[string]interface{})
	assert.Equal(t, "post for linkedin", linkedin["content"])
	assert.Len(t, linkedin["imageUrls"], 1)
	assert.Equal(t, "/api/blobs/video-1", results["video"].(map[string]interface{})["url"])
}

func TestHandleGenerate_Preconditions(t *testing.T) {
	_, _, r := newTestServer(t, false, instantVideo{}, nil)

	rec, body := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select at least one platform or enable video.", body["error"])

	rec, body = doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{"twitter": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, generation.ErrMissingCredential.Error(), body["error"])

	rec, _ = doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":           "espresso",
		"referenceImage": "data:image/png;base64,@@@",
		"platforms":      map[string]bool{"twitter": true},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest("POST", "/api/sessions/s1/generate", strings.NewReader("{"))
	raw := httptest.NewRecorder()
	r.ServeHTTP(raw, req)
	assert.Equal(t, http.StatusBadRequest, raw.Code)
}

func TestHandleGenerate_UnknownPlatformIsBadRequest(t *testing.T) {
	manager, text, r := newTestServer(t, true, instantVideo{}, nil)

	rec, body := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{"tiktok": true},
		"wait":      true,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "Please select at least one platform or enable video.", body["error"])
	assert.Empty(t, text.lastIdea())

	session, ok := manager.Get("s1")
	require.True(t, ok)
	assert.False(t, session.board.Generating())
}

func TestHandleGenerate_MixedCasePlatformKey(t *testing.T) {
	_, _, r := newTestServer(t, true, instantVideo{}, nil)

	rec, body := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{"LinkedIn": true},
		"wait":      true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	results := body["snapshot"].(map[string]interface{})["results"].(map[string]interface{})
	assert.Contains(t, results, "linkedin")
}

func TestHandleGenerate_ConflictWhileRunning(t *testing.T) {
	manager, _, r := newTestServer(t, true, instantVideo{}, nil)
	require.NoError(t, manager.GetOrCreate("s1").Board().Begin("busy", false))

	rec, _ := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{"twitter": true},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleGenerate_UsesDraftWhenBodyIsEmpty(t *testing.T) {
	manager, text, r := newTestServer(t, true, instantVideo{}, nil)

	rec, body := doJSON(t, r, "PUT", "/api/sessions/s1/draft", map[string]interface{}{
		"idea":           "cold brew",
		"referenceImage": "data:image/jpeg;base64,/9j/",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	draft := body["draft"].(map[string]interface{})
	assert.Equal(t, "cold brew", draft["idea"])
	assert.Equal(t, true, draft["hasImage"])

	rec, _ = doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"platforms": map[string]bool{"facebook": true},
		"wait":      true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cold brew", text.lastIdea())

	// 성공하면 입력 폼이 비워짐
	assert.Empty(t, manager.GetOrCreate("s1").Board().Draft().Idea)
}

func TestHandleGenerate_AsyncAndCancel(t *testing.T) {
	video := &blockingVideo{started: make(chan struct{})}
	manager, _, r := newTestServer(t, true, video, nil)

	rec, _ := doJSON(t, r, "POST", "/api/sessions/s1/cancel", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":         "espresso",
		"platforms":    map[string]bool{"pinterest": true},
		"includeVideo": true,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)
	generationID := body["generationId"].(string)
	assert.NotEmpty(t, generationID)

	select {
	case <-video.started:
	case <-time.After(5 * time.Second):
		t.Fatal("video branch never started")
	}

	rec, body = doJSON(t, r, "POST", "/api/sessions/s1/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, generationID, body["generationId"])

	board := manager.GetOrCreate("s1").Board()
	assert.Eventually(t, func() bool { return !board.Generating() }, 5*time.Second, 10*time.Millisecond)

	snap := board.Snapshot()
	assert.Equal(t, model.PhaseSettled, snap.Phase)
	require.NotNil(t, snap.Results)
	assert.Contains(t, snap.Results.Posts, model.PlatformPinterest)
	assert.Nil(t, snap.Results.Video)

	assert.Eventually(t, func() bool {
		rec, _ := doJSON(t, r, "POST", "/api/sessions/s1/cancel", nil)
		return rec.Code == http.StatusConflict
	}, 5*time.Second, 10*time.Millisecond)
}

func TestHandleRemovePostAndGetSession(t *testing.T) {
	_, _, r := newTestServer(t, true, instantVideo{}, nil)

	rec, _ := doJSON(t, r, "POST", "/api/sessions/s1/generate", map[string]interface{}{
		"idea":      "espresso",
		"platforms": map[string]bool{"twitter": true, "linkedin": true},
		"wait":      true,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, r, "DELETE", "/api/sessions/s1/results/bogus", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body := doJSON(t, r, "DELETE", "/api/sessions/s1/results/X", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	results := body["snapshot"].(map[string]interface{})["results"].(map[string]interface{})
	assert.NotContains(t, results, "twitter")
	assert.Contains(t, results, "linkedin")

	rec, _ = doJSON(t, r, "DELETE", "/api/sessions/s1/results/twitter", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = doJSON(t, r, "DELETE", "/api/sessions/s1/results/linkedin", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, body["snapshot"].(map[string]interface{})["results"])

	rec, body = doJSON(t, r, "GET", "/api/sessions/s1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", body["sessionId"])

	rec, _ = doJSON(t, r, "GET", "/api/sessions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestManager_RestoresFromStore(t *testing.T) {
	store := generation.NewMemoryStore()
	results := model.NewResultSet()
	results.Posts[model.PlatformInstagram] = &model.PlatformPost{Platform: model.PlatformInstagram, Content: "saved"}
	require.NoError(t, store.Save(context.Background(), model.Snapshot{
		SessionID:    "s9",
		GenerationID: "g-old",
		Phase:        model.PhaseSettled,
		Results:      results,
	}))

	manager, _, r := newTestServer(t, true, instantVideo{}, store)

	// 메모리에 없어도 저장소에서 조회
	rec, body := doJSON(t, r, "GET", "/api/sessions/s9", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "g-old", body["generationId"])

	snap := manager.GetOrCreate("s9").Board().Snapshot()
	assert.Equal(t, "saved", snap.Results.Posts[model.PlatformInstagram].Content)
}

func TestManager_ObserverPersistsSnapshots(t *testing.T) {
	store := generation.NewMemoryStore()
	manager := NewManager(store)

	board := manager.GetOrCreate("s1").Board()
	board.SetDraft(model.Draft{Idea: "latte"})

	saved, err := store.Load(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "latte", saved.Draft.Idea)
}

func TestManager_CleanupSkipsRunningSessions(t *testing.T) {
	manager := NewManager(nil)

	idle := manager.GetOrCreate("idle")
	running := manager.GetOrCreate("running")
	fresh := manager.GetOrCreate("fresh")

	stale := time.Now().Add(-time.Hour)
	idle.lastActivity = stale
	running.lastActivity = stale
	running.cancel = func() {}
	_ = fresh

	assert.Equal(t, 1, manager.CleanupEmptySessions())
	_, ok := manager.Get("idle")
	assert.False(t, ok)
	_, ok = manager.Get("running")
	assert.True(t, ok)
	_, ok = manager.Get("fresh")
	assert.True(t, ok)

	running.createdAt = time.Now().Add(-48 * time.Hour)
	assert.Equal(t, 0, manager.CleanupExpiredSessions())

	running.cancel = nil
	assert.Equal(t, 1, manager.CleanupExpiredSessions())

	metrics, infos := manager.Metrics()
	assert.Equal(t, 3, metrics.TotalSessions)
	assert.Equal(t, 1, metrics.ActiveSessions)
	assert.Len(t, infos, 1)
}

func TestManager_CleanupKeepsClaimedBoardWithoutCancel(t *testing.T) {
	manager := NewManager(nil)

	claimed := manager.GetOrCreate("claimed")
	require.NoError(t, claimed.board.Begin("gen-1", false))
	claimed.lastActivity = time.Now().Add(-time.Hour)
	claimed.createdAt = time.Now().Add(-48 * time.Hour)
	require.Nil(t, claimed.cancel)

	assert.Equal(t, 0, manager.CleanupEmptySessions())
	assert.Equal(t, 0, manager.CleanupExpiredSessions())
	_, ok := manager.Get("claimed")
	assert.True(t, ok)

	_, infos := manager.Metrics()
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Generating)

	claimed.board.Settle(true)
	assert.Equal(t, 1, manager.CleanupExpiredSessions())
}

func TestHandleWebSocket_StreamsBoardUpdates(t *testing.T) {
	manager, _, r := newTestServer(t, true, instantVideo{}, nil)
	server := httptest.NewServer(r)
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?session=s1&user=u1"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readUpdate := func() Message {
		t.Helper()
		for {
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var msg Message
			require.NoError(t, conn.ReadJSON(&msg))
			if msg.Type == MessageGenerationUpdate {
				return msg
			}
		}
	}

	initial := readUpdate()
	assert.Equal(t, "s1", initial.SessionID)
	require.NotNil(t, initial.Snapshot)
	assert.Equal(t, model.PhaseIdle, initial.Snapshot.Phase)

	manager.GetOrCreate("s1").Board().SetDraft(model.Draft{Idea: "mocha"})
	update := readUpdate()
	assert.Equal(t, "mocha", update.Snapshot.Draft.Idea)

	require.NoError(t, conn.WriteJSON(Message{Type: MessageRequestState}))
	state := readUpdate()
	assert.Equal(t, "mocha", state.Snapshot.Draft.Idea)

	metrics, _ := manager.Metrics()
	assert.Equal(t, 1, metrics.TotalConnections)
}

func TestHandleWebSocket_RequiresParams(t *testing.T) {
	_, _, r := newTestServer(t, true, instantVideo{}, nil)
	rec, _ := doJSON(t, r, "GET", "/ws?session=s1", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
