package token

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
	ErrWrongType    = errors.New("wrong token type")
)

// Token types.
const (
	TypeAccess = "access"
	TypeRoom   = "room"
)

// Claims represents the JWT claims carried by both access and room tokens.
// Room tokens additionally scope the holder to a room and carry the media
// grants the transport consults.
type Claims struct {
	jwt.RegisteredClaims
	Identity     string `json:"identity"`
	Admin        bool   `json:"admin"`
	Type         string `json:"type"` // "access" or "room"
	Room         string `json:"room,omitempty"`
	CanPublish   bool   `json:"can_publish,omitempty"`
	CanSubscribe bool   `json:"can_subscribe,omitempty"`
}

// Manager issues and validates tokens.
type Manager struct {
	privateKey   *rsa.PrivateKey
	publicKey    *rsa.PublicKey
	accessTTL    time.Duration
	roomTokenTTL time.Duration
	issuer       string
}

// NewManager creates a new token manager with a generated RSA key pair.
func NewManager(accessTTL, roomTokenTTL time.Duration, issuer string) (*Manager, error) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	return &Manager{
		privateKey:   privateKey,
		publicKey:    &privateKey.PublicKey,
		accessTTL:    accessTTL,
		roomTokenTTL: roomTokenTTL,
		issuer:       issuer,
	}, nil
}

// IssueAccess creates an API access token for an identity.
func (m *Manager) IssueAccess(identity string, admin bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.accessTTL)),
		},
		Identity: identity,
		Admin:    admin,
		Type:     TypeAccess,
	}
	return m.signToken(claims)
}

// IssueRoomToken creates a time-boxed room join token. Admin identities
// receive the publish grant; everyone receives the subscribe grant.
func (m *Manager) IssueRoomToken(identity, room string, admin bool) (string, error) {
	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.issuer,
			Subject:   identity,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.roomTokenTTL)),
		},
		Identity:     identity,
		Admin:        admin,
		Type:         TypeRoom,
		Room:         room,
		CanPublish:   admin,
		CanSubscribe: true,
	}
	return m.signToken(claims)
}

// Validate validates a token of the expected type and returns its claims.
func (m *Manager) Validate(tokenString, expectedType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, ErrInvalidToken
		}
		return m.publicKey, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	if claims.Type != expectedType {
		return nil, ErrWrongType
	}

	return claims, nil
}

// VerifyRoomToken adapts Validate to the transport's TokenVerifier shape.
func (m *Manager) VerifyRoomToken(tokenString string) (identity string, canPublish bool, err error) {
	claims, err := m.Validate(tokenString, TypeRoom)
	if err != nil {
		return "", false, err
	}
	return claims.Identity, claims.CanPublish, nil
}

func (m *Manager) signToken(claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return token.SignedString(m.privateKey)
}
