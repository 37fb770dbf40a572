package errutil

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestConstructorsKeepCause(t *testing.T) {
	err := Conflict("already entitled", errBoom)

	require.True(t, errors.Is(err, errBoom))
	require.Equal(t, StatusConflict, CodeOf(err))
	require.Equal(t, "[conflict] already entitled: boom", err.Error())
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("cancel: %w", NotFound("no record", nil, WithField("owner_id", "p1")))

	require.True(t, Is(err, StatusNotFound))
	require.Equal(t, StatusUnknown, CodeOf(errBoom))
	require.Equal(t, CoreStatus(""), CodeOf(nil))

	var be BaseError
	require.True(t, errors.As(err, &be))
	require.Len(t, be.Details, 1)
	require.Equal(t, "owner_id", be.Details[0].Field)
}

func TestNormalize(t *testing.T) {
	require.Equal(t, StatusClientClosedRequest, Normalize(context.Canceled).Code)
	require.Equal(t, StatusTimeout, Normalize(fmt.Errorf("charge: %w", context.DeadlineExceeded)).Code)
	require.Equal(t, StatusInternal, Normalize(errBoom).Code)
	require.Equal(t, StatusForbidden, Normalize(Forbidden("no access", nil)).Code)
}

func TestHTTPStatus(t *testing.T) {
	cases := map[CoreStatus]int{
		StatusConflict:            http.StatusConflict,
		StatusNotFound:            http.StatusNotFound,
		StatusUnprocessableEntity: http.StatusUnprocessableEntity,
		StatusPaymentRequired:     http.StatusPaymentRequired,
		StatusForbidden:           http.StatusForbidden,
		StatusUnknown:             http.StatusInternalServerError,
	}
	for code, want := range cases {
		require.Equal(t, want, code.HTTPStatus(), code.String())
	}
}

func TestAbortRendersJSON(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)

	Abort(c, Conflict("already entitled", nil))

	require.Equal(t, http.StatusConflict, rec.Code)
	require.JSONEq(t, `{"error":{"code":"conflict","message":"already entitled","details":null}}`, rec.Body.String())
	require.True(t, c.IsAborted())
}
