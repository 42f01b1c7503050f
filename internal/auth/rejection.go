// Package auth defines the gateway's rejection taxonomy and the authenticated
// principal handed to downstream handlers.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	apperrors "hmac-gateway/internal/common/errors"
)

// Kind classifies why a request was rejected. Every rejection maps to exactly
// one Kind, one HTTP status and one client-facing message.
type Kind string

const (
	KindMalformedCredentials  Kind = "MalformedCredentials"
	KindPayloadTooLarge       Kind = "PayloadTooLarge"
	KindUnsupportedAlgorithm  Kind = "UnsupportedAlgorithm"
	KindInvalidTimestamp      Kind = "InvalidTimestamp"
	KindClockSkew             Kind = "ClockSkew"
	KindMissingIdempotencyKey Kind = "MissingIdempotencyKey"
	KindDuplicateRequest      Kind = "DuplicateRequest"
	KindCredentialNotFound    Kind = "CredentialNotFound"
	KindCredentialInactive    Kind = "CredentialInactive"
	KindIPNotAllowed          Kind = "IpNotAllowed"
	KindSignatureMismatch     Kind = "SignatureMismatch"
	KindStoreUnavailable      Kind = "StoreUnavailable"
	KindInternal              Kind = "Internal"
)

type kindInfo struct {
	status  int
	message string
	errType apperrors.ErrorType
}

var kinds = map[Kind]kindInfo{
	KindMalformedCredentials:  {http.StatusUnauthorized, "Missing or invalid Authorization header", apperrors.ErrTypeAuth},
	KindPayloadTooLarge:       {http.StatusRequestEntityTooLarge, "Request body too large", apperrors.ErrTypeValidation},
	KindUnsupportedAlgorithm:  {http.StatusUnauthorized, "Unsupported signature algorithm", apperrors.ErrTypeAuth},
	KindInvalidTimestamp:      {http.StatusUnauthorized, "Invalid timestamp format", apperrors.ErrTypeAuth},
	KindClockSkew:             {http.StatusUnauthorized, "Request timestamp is outside the allowed window", apperrors.ErrTypeAuth},
	KindMissingIdempotencyKey: {http.StatusUnauthorized, "Missing or invalid idempotency key", apperrors.ErrTypeAuth},
	KindDuplicateRequest:      {http.StatusConflict, "Duplicate request", apperrors.ErrTypeConflict},
	KindCredentialNotFound:    {http.StatusNotFound, "API key not found", apperrors.ErrTypeNotFound},
	KindCredentialInactive:    {http.StatusForbidden, "API key is not active", apperrors.ErrTypeForbidden},
	KindIPNotAllowed:          {http.StatusForbidden, "IP address not allowed", apperrors.ErrTypeForbidden},
	KindSignatureMismatch:     {http.StatusUnauthorized, "Invalid signature", apperrors.ErrTypeAuth},
	KindStoreUnavailable:      {http.StatusServiceUnavailable, "Service temporarily unavailable", apperrors.ErrTypeUnavailable},
	KindInternal:              {http.StatusInternalServerError, "Internal server error", apperrors.ErrTypeInternal},
}

// Kinds lists every rejection kind.
func Kinds() []Kind {
	return []Kind{
		KindMalformedCredentials, KindPayloadTooLarge, KindUnsupportedAlgorithm, KindInvalidTimestamp, KindClockSkew,
		KindMissingIdempotencyKey, KindDuplicateRequest, KindCredentialNotFound, KindCredentialInactive,
		KindIPNotAllowed, KindSignatureMismatch, KindStoreUnavailable, KindInternal,
	}
}

// Status returns the HTTP status for the kind.
func (k Kind) Status() int {
	if info, ok := kinds[k]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// Message returns the client-facing message for the kind.
func (k Kind) Message() string {
	if info, ok := kinds[k]; ok {
		return info.message
	}
	return kinds[KindInternal].message
}

// Rejection is the error returned by a pipeline stage that refuses a request.
// Cause is logged but never sent to the client.
type Rejection struct {
	Kind  Kind
	Cause error
}

// Reject creates a rejection of the given kind.
func Reject(kind Kind, cause error) *Rejection {
	return &Rejection{Kind: kind, Cause: cause}
}

func (r *Rejection) Error() string {
	if r.Cause != nil {
		return fmt.Sprintf("%s: %v", r.Kind, r.Cause)
	}
	return string(r.Kind)
}

func (r *Rejection) Unwrap() error {
	return r.Cause
}

// AppError converts the rejection into the shared error type.
func (r *Rejection) AppError() *apperrors.AppError {
	info, ok := kinds[r.Kind]
	if !ok {
		info = kinds[KindInternal]
	}
	return &apperrors.AppError{
		Type:    info.errType,
		Message: info.message,
		Code:    string(r.Kind),
		Cause:   r.Cause,
	}
}

// AsRejection extracts a Rejection from err. Errors that are not rejections
// become KindStoreUnavailable when they are unavailable/timeout/connection
// errors and KindInternal otherwise.
func AsRejection(err error) *Rejection {
	var rej *Rejection
	if errors.As(err, &rej) {
		return rej
	}
	switch apperrors.GetType(err) {
	case apperrors.ErrTypeUnavailable, apperrors.ErrTypeTimeout, apperrors.ErrTypeConnection:
		return Reject(KindStoreUnavailable, err)
	default:
		return Reject(KindInternal, err)
	}
}

// ErrorResponse is the JSON body of every rejection.
type ErrorResponse struct {
	ErrorMessage string `json:"errorMessage"`
}

// WriteRejection writes the rejection's status and JSON body.
func WriteRejection(w http.ResponseWriter, rej *Rejection) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(rej.Kind.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{ErrorMessage: rej.Kind.Message()})
}
