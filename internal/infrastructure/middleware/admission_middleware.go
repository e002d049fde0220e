package middleware

import (
	stderrors "errors"
	"time"

	"callrelay/internal/core/domain"
	"callrelay/internal/core/ports"
	"callrelay/internal/core/services"
	apperrors "callrelay/pkg/errors"
	"callrelay/pkg/validation"

	"github.com/gin-gonic/gin"
)

// claimContextKey is where the admission middlewares store the
// validated claim for the upgrade handler.
const claimContextKey = "admission_claim"

// AdmissionError maps an admission service failure onto the HTTP error
// surface. Anything that is not one of the service sentinels counts as
// a malformed token.
func AdmissionError(err error, room domain.RoomID) *apperrors.AppError {
	switch {
	case stderrors.Is(err, services.ErrTokenExpired):
		return apperrors.NewTokenExpiredError()
	case stderrors.Is(err, services.ErrBadSignature):
		return apperrors.NewBadSignatureError()
	case stderrors.Is(err, services.ErrNotAuthorizedForRoom):
		return apperrors.NewNotAuthorizedError(string(room))
	default:
		return apperrors.NewTokenMalformedError()
	}
}

// RejectionReason converts an admission error into the label used by
// the rejection counter.
func RejectionReason(appErr *apperrors.AppError) string {
	switch appErr.Code {
	case apperrors.ErrCodeTokenExpired:
		return "expired"
	case apperrors.ErrCodeBadSignature:
		return "bad_signature"
	case apperrors.ErrCodeNotAuthorized:
		return "not_authorized"
	case apperrors.ErrCodeLegacyJoinDisabled:
		return "legacy_disabled"
	default:
		return "malformed"
	}
}

// Admission validates the join token on the primary lobby route and
// stores the claim for the upgrade handler. Rejections are answered
// before any upgrade happens, so clients see a plain HTTP status
// instead of a broken socket.
func Admission(admission ports.AdmissionService, collector ports.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, err := admission.Validate(c.Query("token"), time.Now())
		if err != nil {
			reject(c, collector, AdmissionError(err, ""))
			return
		}

		c.Set(claimContextKey, claim)
		c.Next()
	}
}

// LegacyClaim resolves the deprecated identity/room join form. With
// enforcement on it answers 410 Gone unless the client also carries a
// token pinned to the same identity and room; with enforcement off,
// both segments are sanitized and validated and an ephemeral claim is
// built from them. Shared by the gin middleware and transports that
// run outside the router.
func LegacyClaim(admission ports.AdmissionService, enforce bool, rawIdentity, rawRoom, token string, now time.Time) (*domain.AdmissionClaim, *apperrors.AppError) {
	identity := validation.SanitizeJoinField(rawIdentity)
	room := domain.RoomID(validation.SanitizeJoinField(rawRoom))

	if enforce {
		if token == "" {
			return nil, apperrors.NewLegacyJoinDisabledError()
		}
		claim, err := admission.ValidateForRoom(token, identity, room, now)
		if err != nil {
			return nil, AdmissionError(err, room)
		}
		return claim, nil
	}

	if err := validation.ValidateIdentity(identity); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}
	if err := validation.ValidateRoomID(string(room)); err != nil {
		return nil, apperrors.NewInvalidInputError(err.Error())
	}

	return &domain.AdmissionClaim{
		Identity:    identity,
		RoomID:      room,
		DisplayName: identity,
	}, nil
}

// LegacyAdmission covers the deprecated :identity/:room lobby route.
func LegacyAdmission(admission ports.AdmissionService, enforce bool, collector ports.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		claim, appErr := LegacyClaim(admission, enforce,
			c.Param("identity"), c.Param("room"), c.Query("token"), time.Now())
		if appErr != nil {
			reject(c, collector, appErr)
			return
		}

		c.Set(claimContextKey, claim)
		c.Next()
	}
}

// ClaimFromContext returns the claim stored by an admission middleware.
func ClaimFromContext(c *gin.Context) (*domain.AdmissionClaim, bool) {
	v, ok := c.Get(claimContextKey)
	if !ok {
		return nil, false
	}
	claim, ok := v.(*domain.AdmissionClaim)
	return claim, ok
}

func reject(c *gin.Context, collector ports.Collector, appErr *apperrors.AppError) {
	collector.AdmissionRejected(RejectionReason(appErr))
	c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
		"error":   string(appErr.Code),
		"message": appErr.Message,
	})
}
