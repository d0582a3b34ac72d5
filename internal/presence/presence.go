// Package presence keeps a chat client's Rich Presence in step with the
// host application's current activity.
//
// The [Syncer] owns at most one [Connection] at a time and serializes every
// update and liveness check through a single worker. Producers hand it
// [Presence] snapshots; the Syncer decides whether to skip, send, reconnect,
// or tear down.
package presence

import "slices"

// ///////////////////////////////////////////////
// Presence
// ///////////////////////////////////////////////

// Button is a clickable link shown on the presence card.
type Button struct {
	// Label is the button text shown to viewers.
	Label string `json:"label"`
	// URL is the link opened when the button is clicked.
	URL string `json:"url"`
}

// Presence is a snapshot of the host application's current activity.
//
// A Presence is owned by the caller and must not be mutated after it has
// been passed to [Syncer.Update].
type Presence struct {
	// AppID is the Discord application the presence is published under.
	// An empty AppID means the presence carries no identity, which tears
	// down any active connection.
	AppID string `json:"appId,omitempty"`

	// Details is the top line of the presence card.
	Details string `json:"details,omitempty"`
	// State is the second line of the presence card.
	State string `json:"state,omitempty"`

	// StartTimestamp is the Unix time (seconds) the elapsed timer counts from.
	StartTimestamp int64 `json:"startTimestamp,omitempty"`
	// EndTimestamp is the Unix time (seconds) a countdown ends at.
	EndTimestamp int64 `json:"endTimestamp,omitempty"`

	LargeImage string `json:"largeImage,omitempty"`
	LargeText  string `json:"largeText,omitempty"`
	SmallImage string `json:"smallImage,omitempty"`
	SmallText  string `json:"smallText,omitempty"`

	// Buttons holds at most two buttons; extras are dropped by the transport.
	Buttons []Button `json:"buttons,omitempty"`
}

// HasIdentity reports whether p is non-nil and carries an application ID.
func (p *Presence) HasIdentity() bool {
	return p != nil && p.AppID != ""
}

// Equal reports whether p and other describe the same activity. Two nil
// presences are equal.
func (p *Presence) Equal(other *Presence) bool {
	if p == nil || other == nil {
		return p == other
	}
	return p.AppID == other.AppID &&
		p.Details == other.Details &&
		p.State == other.State &&
		p.StartTimestamp == other.StartTimestamp &&
		p.EndTimestamp == other.EndTimestamp &&
		p.LargeImage == other.LargeImage &&
		p.LargeText == other.LargeText &&
		p.SmallImage == other.SmallImage &&
		p.SmallText == other.SmallText &&
		slices.Equal(p.Buttons, other.Buttons)
}

// ///////////////////////////////////////////////
// User
// ///////////////////////////////////////////////

// User identifies the account signed in to the chat client.
type User struct {
	ID            string
	Username      string
	GlobalName    string
	Discriminator string
	Avatar        string
}

// UnknownUser is reported until a connection completes its handshake.
var UnknownUser = User{ID: "0", Username: "Unknown"}

// Known reports whether u came from a handshake rather than [UnknownUser].
func (u User) Known() bool {
	return u != UnknownUser && u.ID != ""
}

// DisplayName returns the global display name when set, else the username.
func (u User) DisplayName() string {
	if u.GlobalName != "" {
		return u.GlobalName
	}
	return u.Username
}
