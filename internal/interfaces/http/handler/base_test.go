package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/storefront/backend/internal/domain/shared"
	"github.com/storefront/backend/internal/interfaces/http/dto"
	"github.com/storefront/backend/internal/interfaces/http/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serveError(t *testing.T, h *BaseHandler, err error) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.RequestID())
	r.GET("/", func(c *gin.Context) { h.HandleError(c, err) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	return w
}

func TestBaseHandler_HandleError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", shared.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{"wrapped domain error", fmt.Errorf("load: %w", shared.ErrRateLimited), http.StatusTooManyRequests, "RATE_LIMITED"},
		{"unmapped domain code", shared.NewDomainError("SOMETHING_NEW", "x"), http.StatusInternalServerError, "SOMETHING_NEW"},
		{"plain error", errors.New("disk full"), http.StatusInternalServerError, dto.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveError(t, &BaseHandler{}, tt.err)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantCode, errorCode(t, w))
			errInfo := decode(t, w)["error"].(map[string]any)
			assert.NotEmpty(t, errInfo["request_id"])
		})
	}
}

func TestBaseHandler_ExposeErrors(t *testing.T) {
	hidden := serveError(t, &BaseHandler{}, errors.New("disk full"))
	assert.NotContains(t, hidden.Body.String(), "disk full")

	shown := serveError(t, &BaseHandler{ExposeErrors: true}, errors.New("disk full"))
	errInfo := decode(t, shown)["error"].(map[string]any)
	require.Contains(t, errInfo, "details")
	assert.Equal(t, "disk full", errInfo["details"])
}
