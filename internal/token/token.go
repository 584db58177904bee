// Package token builds LiveKit-compatible room access tokens.
//
// A token is a signed, self-contained JWT: HS256, issuer set to the API key,
// and a "video" claim carrying the room grant. Nothing is persisted; every
// call produces an independent, time-bounded credential.
package token

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const DefaultTTL = 6 * time.Hour

var (
	ErrMissingCredentials = errors.New("token: api key and secret required")
	ErrMissingRoom        = errors.New("token: room required")
	ErrMissingIdentity    = errors.New("token: identity required")
)

// VideoGrant mirrors the LiveKit grant claim encoded into access tokens.
type VideoGrant struct {
	Room         string `json:"room,omitempty"`
	RoomJoin     bool   `json:"roomJoin,omitempty"`
	CanPublish   bool   `json:"canPublish,omitempty"`
	CanSubscribe bool   `json:"canSubscribe,omitempty"`
	Agent        bool   `json:"agent,omitempty"`
}

// Builder signs access tokens with a fixed API key pair.
type Builder struct {
	apiKey    string
	apiSecret string
	ttl       time.Duration
}

func NewBuilder(apiKey, apiSecret string, ttl time.Duration) *Builder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Builder{apiKey: apiKey, apiSecret: apiSecret, ttl: ttl}
}

// Join returns a token granting the identity join, publish and subscribe
// permissions in the named room.
func (b *Builder) Join(room, identity string) (string, error) {
	return b.sign(identity, VideoGrant{
		Room:         room,
		RoomJoin:     true,
		CanPublish:   true,
		CanSubscribe: true,
	})
}

// AgentJoin returns a token the worker uses to authenticate against the
// agent dispatch endpoint. It carries the agent flag in addition to the
// room permissions.
func (b *Builder) AgentJoin(identity string) (string, error) {
	return b.sign(identity, VideoGrant{
		RoomJoin:     true,
		CanPublish:   true,
		CanSubscribe: true,
		Agent:        true,
	})
}

func (b *Builder) sign(identity string, grant VideoGrant) (string, error) {
	if b.apiKey == "" || b.apiSecret == "" {
		return "", ErrMissingCredentials
	}
	if identity == "" {
		return "", ErrMissingIdentity
	}
	if grant.Room == "" && !grant.Agent {
		return "", ErrMissingRoom
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"jti":      uuid.NewString(),
		"iss":      b.apiKey,
		"sub":      identity,
		"identity": identity,
		"name":     identity,
		"nbf":      now.Unix(),
		"exp":      now.Add(b.ttl).Unix(),
		"video":    grant,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(b.apiSecret))
	if err != nil {
		return "", fmt.Errorf("token: sign: %w", err)
	}
	return signed, nil
}
