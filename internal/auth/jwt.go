package auth

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"
)

var ErrNoAddress = errors.New("token carries no address")

// Claims identify a player by wallet address. Role "relayer" grants the
// round-close capability.
type Claims struct {
	Address common.Address `json:"addr"`
	Role    string         `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret []byte) *Service {
	return &Service{secret: secret, now: time.Now}
}

func (s *Service) Sign(addr common.Address, role string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		Address: addr,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   addr.Hex(),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *Service) Verify(token string) (*Claims, error) {
	t, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, err
	}

	claims, ok := t.Claims.(*Claims)
	if !ok || !t.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	if claims.Address == (common.Address{}) {
		return nil, ErrNoAddress
	}
	return claims, nil
}
