package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUserRef(t *testing.T) {
	u, err := NewUserRef("u1", "alice")
	require.NoError(t, err)
	assert.True(t, u.Valid())

	_, err = NewUserRef("", "alice")
	assert.ErrorIs(t, err, ErrUserMissing)
	_, err = NewUserRef("u1", "")
	assert.ErrorIs(t, err, ErrUserMissing)
	_, err = NewUserRef("u1", strings.Repeat("x", MaxDisplayNameLen+1))
	assert.ErrorIs(t, err, ErrNameTooLong)
}

func TestTrackValidate(t *testing.T) {
	ok := Track{ID: "t1", SourceURL: "https://x/1"}
	assert.NoError(t, ok.Validate())

	assert.ErrorIs(t, Track{SourceURL: "https://x/1"}.Validate(), ErrTrackInvalid)
	assert.ErrorIs(t, Track{ID: "t1"}.Validate(), ErrTrackInvalid)
}

func TestIsHost(t *testing.T) {
	s := Session{Host: UserRef{ID: "u1", Name: "alice"}}
	assert.True(t, s.IsHost(UserRef{ID: "u1", Name: "renamed"}))
	assert.False(t, s.IsHost(UserRef{ID: "u2", Name: "alice"}))

	// A session without a host grants authority to nobody.
	var hostless Session
	assert.False(t, hostless.IsHost(UserRef{}))
}
