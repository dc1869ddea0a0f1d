package loom

import (
	stderrors "errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/toyz/loom/internal/errors"
)

func TestResponse(t *testing.T) {
	tests := []struct {
		name   string
		resp   *Response
		status int
		body   any
	}{
		{"new", NewResponse(418, "teapot"), 418, "teapot"},
		{"ok", OK(map[string]string{"data": "x"}), 200, map[string]string{"data": "x"}},
		{"created", Created(1), 201, 1},
		{"accepted", Accepted(nil), 202, nil},
		{"no content", NoContent(), 204, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.resp.StatusCode())
			assert.Equal(t, tt.body, tt.resp.ResponseBody())
		})
	}
}

func TestStatusFor(t *testing.T) {
	coercion := errors.NewArgumentCoercionError("abc", "int", stderrors.New("invalid syntax")).AtParameter(0)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"coercion", coercion, http.StatusBadRequest},
		{"http error", errors.NewInvocationError("h", ErrConflict("taken")), http.StatusConflict},
		{"plain invocation", errors.NewInvocationError("h", stderrors.New("boom")), http.StatusInternalServerError},
		{"panic", errors.NewPanicInvocationError("h", "kaboom"), http.StatusInternalServerError},
		{"unknown", stderrors.New("other"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFor(tt.err))
		})
	}
}

func TestErrorBody(t *testing.T) {
	t.Run("http error is returned as is", func(t *testing.T) {
		httpErr := ErrUnprocessableEntity("title is required")
		body := ErrorBody(errors.NewInvocationError("h", httpErr))
		assert.Same(t, httpErr, body)
	})

	t.Run("coercion details", func(t *testing.T) {
		err := errors.NewArgumentCoercionError("abc", "int", stderrors.New("bad")).AtParameter(1)
		body := ErrorBody(err)
		require.Equal(t, http.StatusBadRequest, body.StatusCode)
		assert.Equal(t, map[string]any{"parameter": 1, "value": "abc", "type": "int"}, body.Details)
	})

	t.Run("internal errors are not exposed", func(t *testing.T) {
		body := ErrorBody(errors.NewInvocationError("h", stderrors.New("db password wrong")))
		assert.Equal(t, http.StatusInternalServerError, body.StatusCode)
		assert.Equal(t, "Internal Server Error", body.Message)
	})
}

func TestHttpError(t *testing.T) {
	err := NewHttpErrorWithDetails(http.StatusBadRequest, "invalid", []string{"title"})
	assert.Equal(t, "HTTP 400: invalid", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, ErrUnauthorized("x").StatusCode)
	assert.Equal(t, http.StatusForbidden, ErrForbidden("x").StatusCode)
	assert.Equal(t, http.StatusInternalServerError, ErrInternalServerError("x").StatusCode)
	assert.Equal(t, []string{"title"}, ErrBadRequestWithDetails("x", []string{"title"}).Details)
}
