package prompt

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"omnipost-server/modules/common/gemini/geminitest"
)

func newRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestHandleRefine(t *testing.T) {
	fake := &fakeModels{resp: geminitest.TextResponse("Golden hour latte art.")}
	r := newRouter(NewHandler(NewService(fake, testConfig())))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompt/refine", strings.NewReader(`{"idea":" latte "}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Golden hour latte art.", body["prompt"])
	assert.Equal(t, true, body["refined"])
}

func TestHandleRefine_WithoutServiceEchoesIdea(t *testing.T) {
	r := newRouter(NewHandler(nil))

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompt/refine", strings.NewReader(`{"idea":"latte"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "latte", body["prompt"])
	assert.Equal(t, false, body["refined"])
}

func TestHandleRefine_BadRequests(t *testing.T) {
	r := newRouter(NewHandler(nil))

	for _, payload := range []string{`{`, `{"idea":"   "}`, `{"idea":"x","referenceImage":"data:image/png;base64,@@"}`} {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/prompt/refine", strings.NewReader(payload)))
		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
	}
}
