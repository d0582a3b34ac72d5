package presence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPresence_Equal(t *testing.T) {
	base := func() *Presence {
		return &Presence{
			AppID:      "app",
			Details:    "Editing main.go",
			State:      "cordsync",
			LargeImage: "go",
			Buttons:    []Button{{Label: "Repo", URL: "https://example.com"}},
		}
	}

	tests := []struct {
		name string
		a, b *Presence
		want bool
	}{
		{"both nil", nil, nil, true},
		{"nil and non-nil", nil, base(), false},
		{"identical values", base(), base(), true},
		{"different app", base(), &Presence{AppID: "other"}, false},
		{"different details", base(), func() *Presence { p := base(); p.Details = "x"; return p }(), false},
		{"different button", base(), func() *Presence { p := base(); p.Buttons[0].URL = "https://x"; return p }(), false},
		{"missing buttons", base(), func() *Presence { p := base(); p.Buttons = nil; return p }(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Equal(tt.b))
			assert.Equal(t, tt.want, tt.b.Equal(tt.a))
		})
	}
}

func TestPresence_HasIdentity(t *testing.T) {
	var p *Presence
	assert.False(t, p.HasIdentity())
	assert.False(t, (&Presence{Details: "x"}).HasIdentity())
	assert.True(t, (&Presence{AppID: "1"}).HasIdentity())
}

func TestUser_DisplayName(t *testing.T) {
	assert.Equal(t, "Ada", User{ID: "1", Username: "ada", GlobalName: "Ada"}.DisplayName())
	assert.Equal(t, "ada", User{ID: "1", Username: "ada"}.DisplayName())
	assert.False(t, UnknownUser.Known())
	assert.True(t, User{ID: "1"}.Known())
}

func TestConnState_String(t *testing.T) {
	assert.Equal(t, "connecting", StateConnecting.String())
	assert.Equal(t, "unknown", ConnState(99).String())
}
