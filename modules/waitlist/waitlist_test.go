package waitlist

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInserter struct {
	err   error
	table string
	rows  []Entry
}

func (f *fakeInserter) InsertRow(table string, row interface{}) ([]byte, error) {
	f.table = table
	f.rows = append(f.rows, row.([]Entry)...)
	return []byte("[]"), f.err
}

func TestJoin(t *testing.T) {
	fake := &fakeInserter{}
	svc := NewService(fake, "waitlist")

	already, err := svc.Join(" Ada ", "ada@example.com ")
	require.NoError(t, err)
	assert.False(t, already)
	assert.Equal(t, "waitlist", fake.table)
	assert.Equal(t, []Entry{{Name: "Ada", Email: "ada@example.com"}}, fake.rows)
}

func TestJoin_DuplicateIsSuccess(t *testing.T) {
	tests := []error{
		errors.New(`(23505) conflict`),
		errors.New(`duplicate key value violates unique constraint "waitlist_email_key"`),
	}
	for _, dupErr := range tests {
		already, err := NewService(&fakeInserter{err: dupErr}, "waitlist").Join("Ada", "ada@example.com")
		require.NoError(t, err)
		assert.True(t, already)
	}
}

func TestJoin_Errors(t *testing.T) {
	svc := NewService(&fakeInserter{}, "waitlist")

	tests := []struct {
		name, email, want string
	}{
		{"", "ada@example.com", "Please enter your name"},
		{"Ada", " ", "Please enter your email"},
		{"Ada", "ada@example", "Please enter a valid email address"},
	}
	for _, tt := range tests {
		_, err := svc.Join(tt.name, tt.email)
		var validation *ValidationError
		require.ErrorAs(t, err, &validation)
		assert.Equal(t, tt.want, validation.Message)
	}

	_, err := NewService(nil, "waitlist").Join("Ada", "ada@example.com")
	assert.ErrorIs(t, err, ErrNotConfigured)

	_, err = NewService(&fakeInserter{err: errors.New("timeout")}, "waitlist").Join("Ada", "ada@example.com")
	assert.Error(t, err)
}

func TestJoin_MalformedEmailIsNotInserted(t *testing.T) {
	for _, email := range []string{"a@b..c", "a@.b.c", "<x>@y.z", "a@b.c.", "ada@@example.com", "ada example@x.io"} {
		t.Run(email, func(t *testing.T) {
			fake := &fakeInserter{}
			_, err := NewService(fake, "waitlist").Join("Ada", email)

			var validation *ValidationError
			require.ErrorAs(t, err, &validation)
			assert.Equal(t, "Please enter a valid email address", validation.Message)
			assert.Empty(t, fake.rows)
		})
	}
}

func TestHandleJoin(t *testing.T) {
	r := mux.NewRouter()
	NewHandler(NewService(&fakeInserter{err: errors.New("duplicate key")}, "waitlist")).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/waitlist", strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`)))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["alreadyJoined"])

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/waitlist", strings.NewReader(`{"name":"Ada","email":"nope"}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "valid email")
}

func TestHandleJoin_NotConfigured(t *testing.T) {
	r := mux.NewRouter()
	NewHandler(NewService(nil, "waitlist")).RegisterRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("POST", "/api/waitlist", strings.NewReader(`{"name":"Ada","email":"ada@example.com"}`)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
