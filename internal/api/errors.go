package api

import (
	"errors"

	"mentorchat/backend/internal/orchestrator"
	"mentorchat/backend/internal/persona"
	"mentorchat/backend/internal/session"
	apperrors "mentorchat/backend/pkg/errors"
	"mentorchat/backend/pkg/jwt"
)

// toAppError maps domain errors onto the HTTP error contract. Anything
// unrecognised becomes a 500 whose cause only reaches the logs.
func toAppError(err error) *apperrors.AppError {
	var appErr *apperrors.AppError
	switch {
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, persona.ErrUnknownPersona):
		return apperrors.NewBadRequestError(apperrors.CodeUnknownPersona, "Unknown persona").Wrap(err)
	case errors.Is(err, orchestrator.ErrEmptyMessage):
		return apperrors.NewBadRequestError(apperrors.CodeInvalidRequest, "Message must not be empty").Wrap(err)
	case errors.Is(err, session.ErrSessionNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeSessionNotFound, "Session not found").Wrap(err)
	case errors.Is(err, session.ErrPersonaMismatch):
		return apperrors.NewConflictError(apperrors.CodePersonaMismatch, "Session belongs to a different persona").Wrap(err)
	case errors.Is(err, session.ErrClosed):
		return apperrors.NewGoneError(apperrors.CodeSessionClosed, "Session has been closed").Wrap(err)
	case errors.Is(err, session.ErrThreadNotFound):
		return apperrors.NewNotFoundError(apperrors.CodeThreadNotFound, "Thread not found").Wrap(err)
	case errors.Is(err, session.ErrThreadKeyConflict):
		return apperrors.NewConflictError(apperrors.CodeThreadConflict, "Thread key conflict").Wrap(err)
	case errors.Is(err, jwt.ErrInvalidToken), errors.Is(err, jwt.ErrExpiredToken):
		return apperrors.NewUnauthorizedError(apperrors.CodeInvalidTicket, "Invalid or expired session ticket").Wrap(err)
	case errors.Is(err, orchestrator.ErrAnalysisUnavailable):
		return apperrors.NewBadGatewayError(apperrors.CodeAnalysisFailed, "Analysis is temporarily unavailable").Wrap(err)
	default:
		return apperrors.FromError(err)
	}
}
