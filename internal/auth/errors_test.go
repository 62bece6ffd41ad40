package auth

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"invalid credential", fmt.Errorf("sign in: %w", ErrInvalidCredential), KindInvalidCredential},
		{"resolution folds into invalid credential", ErrResolution, KindInvalidCredential},
		{"duplicate", ErrDuplicateAccount, KindDuplicateAccount},
		{"unavailable", ErrServiceUnavailable, KindServiceUnavailable},
		{"unknown", errors.New("connection reset"), KindServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestUnavailable(t *testing.T) {
	assert.NoError(t, Unavailable(nil))
	assert.Same(t, ErrInvalidCredential, Unavailable(ErrInvalidCredential))
	assert.Equal(t, ErrInvalidCredential.Error(), ErrResolution.Error())

	wrapped := Unavailable(errors.New("dial tcp: refused"))
	assert.ErrorIs(t, wrapped, ErrServiceUnavailable)
	assert.Contains(t, wrapped.Error(), "dial tcp")

	already := fmt.Errorf("%w: boom", ErrServiceUnavailable)
	assert.Same(t, already, Unavailable(already))
}

func TestSession(t *testing.T) {
	now := time.Now()

	s := &Session{ExpiresAt: now.Add(30 * time.Second), User: User{ID: "u1"}}
	assert.False(t, s.Expired(now, 0))
	assert.True(t, s.Expired(now, time.Minute))
	assert.False(t, (&Session{}).Expired(now, time.Hour))

	assert.Nil(t, UserOf(nil))
	assert.Equal(t, "u1", UserOf(s).ID)
}
