// Package auth provides the identity provider used by the chat client and the
// JWT claims shared with the reference backend.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/capitalize-ai/quorra/internal/model"
)

// ErrSignedOut is returned by CurrentUser when no token is held.
var ErrSignedOut = errors.New("not signed in")

// Provider is the identity provider contract consumed by the chat client.
type Provider interface {
	CurrentUser(ctx context.Context) (*model.User, error)
	OnAuthStateChange(fn func(*model.User)) (unsubscribe func())
	SignOut(ctx context.Context) error
}

// Claims represents JWT claims. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// User converts claims to a user.
func (c *Claims) User() *model.User {
	return &model.User{
		ID:          c.Subject,
		Email:       c.Email,
		DisplayName: c.DisplayName,
	}
}

// Issue signs an HS256 token for the user.
func Issue(secret string, user model.User, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// Parse verifies an HS256 token and returns its claims.
func Parse(secret, tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, jwt.ErrTokenUnverifiable
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

// TokenProvider is a Provider backed by a bearer token. When a secret is set
// the token is verified; otherwise only its claims and expiry are read, and the
// backend remains the authority.
type TokenProvider struct {
	secret string

	mu        sync.Mutex
	token     string
	claims    *Claims
	listeners map[int]func(*model.User)
	nextID    int
}

// NewTokenProvider creates a signed-out provider.
func NewTokenProvider(secret string) *TokenProvider {
	return &TokenProvider{
		secret:    secret,
		listeners: make(map[int]func(*model.User)),
	}
}

// SignIn validates the token, stores it and notifies listeners.
func (p *TokenProvider) SignIn(tokenString string) (*model.User, error) {
	claims, err := p.parse(tokenString)
	if err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}

	p.mu.Lock()
	p.token = tokenString
	p.claims = claims
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	user := claims.User()
	for _, fn := range listeners {
		fn(user)
	}
	return user, nil
}

// CurrentUser returns the signed-in user. An expired token reads as signed out.
func (p *TokenProvider) CurrentUser(ctx context.Context) (*model.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.claims == nil {
		return nil, ErrSignedOut
	}
	if exp := p.claims.ExpiresAt; exp != nil && time.Now().After(exp.Time) {
		return nil, jwt.ErrTokenExpired
	}
	return p.claims.User(), nil
}

// Token returns the bearer token, or "" when signed out.
func (p *TokenProvider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.token
}

// OnAuthStateChange registers fn; it receives nil on sign-out.
func (p *TokenProvider) OnAuthStateChange(fn func(*model.User)) func() {
	p.mu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, id)
		p.mu.Unlock()
	}
}

// SignOut drops the token and notifies listeners.
func (p *TokenProvider) SignOut(ctx context.Context) error {
	p.mu.Lock()
	p.token = ""
	p.claims = nil
	listeners := p.snapshotListeners()
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(nil)
	}
	return nil
}

func (p *TokenProvider) parse(tokenString string) (*Claims, error) {
	if p.secret != "" {
		return Parse(p.secret, tokenString)
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenString, claims); err != nil {
		return nil, err
	}
	if claims.Subject == "" {
		return nil, errors.New("token has no subject")
	}
	return claims, nil
}

func (p *TokenProvider) snapshotListeners() []func(*model.User) {
	out := make([]func(*model.User), 0, len(p.listeners))
	for _, fn := range p.listeners {
		out = append(out, fn)
	}
	return out
}
