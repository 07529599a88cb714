package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-crosspost/open-crosspost-proxy-service-sub001/internal/core/domain"
)

type bogusClassifiable struct{}

func (bogusClassifiable) Error() string               { return "" }
func (bogusClassifiable) ErrorCode() domain.ErrorCode { return "SOMETHING_ELSE" }
func (bogusClassifiable) IsRecoverable() bool         { return true }

type panickyClassifiable struct{}

func (panickyClassifiable) Error() string               { panic("broken Error()") }
func (panickyClassifiable) ErrorCode() domain.ErrorCode { return domain.CodeNotFound }
func (panickyClassifiable) IsRecoverable() bool         { return false }

func TestClassify(t *testing.T) {
	t.Parallel()
	tc := TargetContext{Platform: domain.PlatformTwitter, UserID: "u1"}

	t.Run("platform error passes through", func(t *testing.T) {
		t.Parallel()
		pe := domain.NewPlatformError(domain.CodeDuplicateContent, "already posted", false).WithDetail("tweet", "42")
		d := Classify(fmt.Errorf("create: %w", pe), tc)

		assert.Equal(t, domain.CodeDuplicateContent, d.Code)
		assert.Equal(t, "already posted", d.Message)
		assert.False(t, d.Recoverable)
		assert.Equal(t, domain.StatusError, d.Status)
		assert.Equal(t, "u1", d.UserID)
		assert.Equal(t, "42", d.Details["tweet"])
	})

	t.Run("error fields win over context", func(t *testing.T) {
		t.Parallel()
		pe := domain.NewPlatformError(domain.CodeRateLimited, "slow down", true).For(domain.PlatformTwitter, "other")
		d := Classify(pe, tc)
		assert.Equal(t, "other", d.UserID)
		assert.True(t, d.Recoverable)
		assert.Equal(t, http.StatusTooManyRequests, d.Code.HTTPStatus())
	})

	t.Run("plain error", func(t *testing.T) {
		t.Parallel()
		d := Classify(errors.New("connection reset"), tc)
		assert.Equal(t, domain.CodePlatformError, d.Code)
		assert.False(t, d.Recoverable)
		assert.Equal(t, "connection reset", d.Message)
		assert.Equal(t, domain.PlatformTwitter, d.Platform)
	})

	t.Run("nil error", func(t *testing.T) {
		t.Parallel()
		d := Classify(nil, tc)
		assert.Equal(t, domain.CodePlatformError, d.Code)
		assert.Equal(t, "Unknown error", d.Message)
	})

	t.Run("code outside enumeration", func(t *testing.T) {
		t.Parallel()
		d := Classify(bogusClassifiable{}, tc)
		assert.Equal(t, domain.CodeUnknownError, d.Code)
		assert.Equal(t, "Unknown error", d.Message)
		assert.True(t, d.Recoverable)
	})

	t.Run("never panics", func(t *testing.T) {
		t.Parallel()
		var d domain.ErrorDetail
		require.NotPanics(t, func() { d = Classify(panickyClassifiable{}, tc) })
		assert.Equal(t, domain.CodeInternalError, d.Code)
		assert.Equal(t, "u1", d.UserID)
	})
}

func TestClassify_Idempotent(t *testing.T) {
	t.Parallel()
	tc := TargetContext{Platform: domain.PlatformTwitter, UserID: "u1"}

	inputs := []error{
		nil,
		errors.New("x"),
		domain.NewPlatformError(domain.CodeNotFound, "gone", false),
		bogusClassifiable{},
	}
	for _, in := range inputs {
		assert.Equal(t, Classify(in, tc), Classify(in, tc))
	}
}
