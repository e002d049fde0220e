package services

import (
	"errors"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/pkg/validation"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenMalformed       = errors.New("token malformed")
	ErrTokenExpired         = errors.New("token expired")
	ErrBadSignature         = errors.New("token signature invalid")
	ErrNotAuthorizedForRoom = errors.New("token not authorized for room")
)

// RoomClaims is the join token payload. Subject carries the client
// identity; Room and RoomJoin scope the grant to a single room.
type RoomClaims struct {
	Room        string `json:"room"`
	RoomJoin    bool   `json:"room_join"`
	IsHost      bool   `json:"is_host"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

type admissionService struct {
	jwtSecret []byte
	issuer    string
	tokenTTL  time.Duration
}

func NewAdmissionService(jwtSecret, issuer string, tokenTTL time.Duration) ports.AdmissionService {
	return &admissionService{
		jwtSecret: []byte(jwtSecret),
		issuer:    issuer,
		tokenTTL:  tokenTTL,
	}
}

// Validate checks signature, expiry and room grant against the given
// clock. The error is always one of the four admission sentinels so
// transports can map it onto a status code without string matching.
func (s *admissionService) Validate(tokenString string, now time.Time) (*domain.AdmissionClaim, error) {
	claims := &RoomClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrBadSignature
		}
		return s.jwtSecret, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			// Expired is the one retryable failure: the client can
			// mint a fresh token and come back.
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, ErrBadSignature):
			return nil, ErrBadSignature
		default:
			return nil, ErrTokenMalformed
		}
	}

	if claims.Subject == "" || claims.Room == "" {
		return nil, ErrTokenMalformed
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrNotAuthorizedForRoom
	}
	if !claims.RoomJoin {
		return nil, ErrNotAuthorizedForRoom
	}

	return s.toClaim(claims), nil
}

// ValidateForRoom additionally pins the token to the identity and room
// taken from a legacy join path. A valid token for a different room is
// not authorized here.
func (s *admissionService) ValidateForRoom(tokenString, identity string, room domain.RoomID, now time.Time) (*domain.AdmissionClaim, error) {
	claim, err := s.Validate(tokenString, now)
	if err != nil {
		return nil, err
	}
	if claim.Identity != identity || claim.RoomID != room {
		return nil, ErrNotAuthorizedForRoom
	}
	return claim, nil
}

// Mint signs a token for the claim. Used by the token tool and tests.
// Minted identities and rooms obey the same alphabet the legacy join
// path enforces, so a token never names a room a URL cannot.
func (s *admissionService) Mint(claim *domain.AdmissionClaim) (string, error) {
	if err := validation.ValidateIdentity(claim.Identity); err != nil {
		return "", err
	}
	if err := validation.ValidateRoomID(string(claim.RoomID)); err != nil {
		return "", err
	}
	if claim.DisplayName != "" {
		if err := validation.ValidateDisplayName(claim.DisplayName); err != nil {
			return "", err
		}
	}

	issuedAt := claim.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = time.Now()
	}
	expiresAt := claim.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = issuedAt.Add(s.tokenTTL)
	}

	claims := &RoomClaims{
		Room:        string(claim.RoomID),
		RoomJoin:    true,
		IsHost:      claim.IsHost,
		DisplayName: claim.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claim.Identity,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

func (s *admissionService) toClaim(claims *RoomClaims) *domain.AdmissionClaim {
	display := claims.DisplayName
	if display == "" {
		display = claims.Subject
	}

	claim := &domain.AdmissionClaim{
		Identity:    claims.Subject,
		RoomID:      domain.RoomID(claims.Room),
		DisplayName: display,
		IsHost:      claims.IsHost,
	}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		claim.ExpiresAt = claims.ExpiresAt.Time
	}
	return claim
}
