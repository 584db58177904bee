package token

import (
	"testing"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

func parseToken(t *testing.T, signed, secret string) jwt.MapClaims {
	t.Helper()
	parsed, err := jwt.Parse(signed, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			t.Fatalf("unexpected signing method %v", tok.Method.Alg())
		}
		return []byte(secret), nil
	})
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		t.Fatalf("token not valid: %+v", parsed.Claims)
	}
	return claims
}

func TestJoinTokenClaims(t *testing.T) {
	b := NewBuilder("api-key", "api-secret", time.Hour)
	signed, err := b.Join("lobby", "alice")
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	if signed == "" {
		t.Fatalf("Join() returned empty token")
	}

	claims := parseToken(t, signed, "api-secret")
	if claims["iss"] != "api-key" {
		t.Fatalf("iss = %v, want api-key", claims["iss"])
	}
	if claims["sub"] != "alice" || claims["identity"] != "alice" {
		t.Fatalf("identity claims = sub:%v identity:%v, want alice", claims["sub"], claims["identity"])
	}

	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatalf("video grant missing: %+v", claims)
	}
	if video["room"] != "lobby" {
		t.Fatalf("grant room = %v, want lobby", video["room"])
	}
	for _, perm := range []string{"roomJoin", "canPublish", "canSubscribe"} {
		if video[perm] != true {
			t.Fatalf("grant %s = %v, want true", perm, video[perm])
		}
	}
	if _, present := video["agent"]; present {
		t.Fatalf("join grant should not carry agent flag: %+v", video)
	}

	exp, _ := claims["exp"].(float64)
	nbf, _ := claims["nbf"].(float64)
	if time.Duration(exp-nbf)*time.Second != time.Hour {
		t.Fatalf("ttl = %vs, want 3600", exp-nbf)
	}
}

func TestAgentJoinTokenClaims(t *testing.T) {
	b := NewBuilder("api-key", "api-secret", 0)
	signed, err := b.AgentJoin("frontdesk")
	if err != nil {
		t.Fatalf("AgentJoin() error = %v", err)
	}

	claims := parseToken(t, signed, "api-secret")
	video, ok := claims["video"].(map[string]any)
	if !ok {
		t.Fatalf("video grant missing: %+v", claims)
	}
	if video["agent"] != true {
		t.Fatalf("agent flag = %v, want true", video["agent"])
	}
}

func TestTokensAreIndependent(t *testing.T) {
	b := NewBuilder("api-key", "api-secret", time.Hour)
	first, err := b.Join("lobby", "alice")
	if err != nil {
		t.Fatalf("first Join() error = %v", err)
	}
	second, err := b.Join("lobby", "alice")
	if err != nil {
		t.Fatalf("second Join() error = %v", err)
	}
	// Same parameters, distinct jti: tokens are never cached or deduplicated.
	if first == second {
		t.Fatalf("two tokens for identical parameters are byte-identical")
	}
}

func TestJoinValidation(t *testing.T) {
	cases := []struct {
		name     string
		key      string
		secret   string
		room     string
		identity string
		wantErr  error
	}{
		{"missing key", "", "s", "lobby", "alice", ErrMissingCredentials},
		{"missing secret", "k", "", "lobby", "alice", ErrMissingCredentials},
		{"missing room", "k", "s", "", "alice", ErrMissingRoom},
		{"missing identity", "k", "s", "lobby", "", ErrMissingIdentity},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := NewBuilder(tc.key, tc.secret, time.Hour)
			if _, err := b.Join(tc.room, tc.identity); err != tc.wantErr {
				t.Fatalf("Join() error = %v, want %v", err, tc.wantErr)
			}
		})
	}
}
