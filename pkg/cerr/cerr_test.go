package cerr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kazz187/taskdesk/pkg/storage"
)

func TestNewError_StackOnlyForServerErrors(t *testing.T) {
	assert.NotEmpty(t, NewError(Internal, "server error", nil).Stack)
	assert.Empty(t, NewError(NotFound, "missing", nil).Stack)
}

func TestCodeOf(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", NewError(Unavailable, "down", errors.New("dial")))
	assert.Equal(t, Unavailable, CodeOf(wrapped))
	assert.True(t, IsCode(wrapped, Unavailable))
	assert.Equal(t, Unknown, CodeOf(errors.New("plain")))
	assert.Equal(t, OK, CodeOf(nil))
	assert.False(t, IsCode(nil, OK))
}

func TestFromHTTPStatus_RoundTrip(t *testing.T) {
	for _, c := range []Code{InvalidArgument, NotFound, Unauthenticated, PermissionDenied, ResourceExhausted, Unavailable, Internal} {
		assert.Equal(t, c, FromHTTPStatus(c.HTTPCode()), c.String())
	}
	assert.Equal(t, DeadlineExceeded, FromHTTPStatus(http.StatusRequestTimeout))
}

func TestWrapStorage(t *testing.T) {
	missing := fmt.Errorf("read: %w", storage.ErrNotFound)

	err := WrapStorage(StorageRead, "task", missing)
	assert.True(t, IsCode(err, NotFound))
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	assert.Equal(t, "task not found", err.(*Error).Msg)

	assert.True(t, IsCode(WrapStorage(StorageDelete, "task", missing), NotFound))
	assert.True(t, IsCode(WrapStorage(StorageWrite, "task", missing), Internal))

	err = WrapStorage(StorageRead, "task", errors.New("disk"))
	assert.True(t, IsCode(err, Internal))
	assert.Contains(t, err.Error(), "failed to read task")

	assert.NoError(t, WrapStorage(StorageRead, "task", nil))
}

func TestJSONResponseChiMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		handler    func(ctx context.Context)
		wantStatus int
		wantBody   string
	}{
		{
			name:       "response",
			handler:    func(ctx context.Context) { SetJSONResponse(ctx, map[string]string{"a": "b"}) },
			wantStatus: http.StatusOK,
			wantBody:   `{"a":"b"}`,
		},
		{
			name:       "created",
			handler:    func(ctx context.Context) { SetJSONResponseWithStatus(ctx, http.StatusCreated, []int{1}) },
			wantStatus: http.StatusCreated,
			wantBody:   `[1]`,
		},
		{
			name:       "coded error",
			handler:    func(ctx context.Context) { SetNewJSONError(ctx, NotFound, "task not found", nil) },
			wantStatus: http.StatusNotFound,
			wantBody:   `{"code":"not_found","message":"task not found"}`,
		},
		{
			name:       "plain error",
			handler:    func(ctx context.Context) { SetJSONError(ctx, errors.New("boom")) },
			wantStatus: http.StatusInternalServerError,
			wantBody:   `{"code":"unknown","message":"unknown error"}`,
		},
		{
			name:       "no content",
			handler:    func(ctx context.Context) { SetStatus(ctx, http.StatusNoContent) },
			wantStatus: http.StatusNoContent,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewJSONResponseChiMiddleware()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				tt.handler(r.Context())
			}))
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

			require.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody == "" {
				assert.Empty(t, rec.Body.String())
				return
			}
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}
