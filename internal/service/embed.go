package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// ErrInvalidEmbedToken is returned for tokens that fail verification or do
// not match the requested visualization.
var ErrInvalidEmbedToken = errors.New("service: invalid embed token")

const defaultEmbedTTL = 7 * 24 * time.Hour

type embedClaims struct {
	jwt.StandardClaims
	QueryID         int64 `json:"qid"`
	VisualizationID int64 `json:"vid"`
}

// EmbedSigner issues and checks HS256 tokens scoped to one visualization.
type EmbedSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewEmbedSigner creates a signer. A non-positive ttl uses seven days.
func NewEmbedSigner(secret string, ttl time.Duration) (*EmbedSigner, error) {
	if secret == "" {
		return nil, errors.New("service: embed secret is empty")
	}
	if ttl <= 0 {
		ttl = defaultEmbedTTL
	}
	return &EmbedSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign returns a token for the visualization.
func (s *EmbedSigner) Sign(queryID, visualizationID int64) (string, error) {
	now := s.now()
	claims := embedClaims{
		StandardClaims: jwt.StandardClaims{
			IssuedAt:  now.Unix(),
			ExpiresAt: now.Add(s.ttl).Unix(),
			Issuer:    "queryview",
			Subject:   fmt.Sprintf("query/%d/visualization/%d", queryID, visualizationID),
		},
		QueryID:         queryID,
		VisualizationID: visualizationID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("service: sign embed token: %w", err)
	}
	return token, nil
}

// Verify checks token against the visualization it claims to unlock.
func (s *EmbedSigner) Verify(token string, queryID, visualizationID int64) error {
	claims := &embedClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEmbedToken, err)
	}
	if !parsed.Valid || claims.QueryID != queryID || claims.VisualizationID != visualizationID {
		return ErrInvalidEmbedToken
	}
	return nil
}
