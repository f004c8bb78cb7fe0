package model

import "fmt"

// ErrorCode classifies failures surfaced by the engine and its platform
// adapters. Codes are returned in error results and in unverified validation
// payloads so callers can branch on the kind of failure without string
// matching.
type ErrorCode int

const (
	ErrSetup ErrorCode = 6777001 + iota
	ErrLoad
	ErrPurchase
	ErrLoadReceipts
	ErrClientInvalid
	ErrPaymentCancelled
	ErrPaymentInvalid
	ErrPaymentNotAllowed
	ErrUnknown
	ErrRefreshReceipts
	ErrInvalidProductID
	ErrFinish
	ErrCommunication
	ErrSubscriptionsNotAvailable
	ErrMissingToken
	ErrVerificationFailed
	ErrBadResponse
	ErrRefresh
	ErrPaymentExpired
	ErrDownload
	ErrSubscriptionUpdateNotAvailable
	ErrProductNotAvailable
	ErrUnsupported
)

// Error is the success-or-error result type returned by adapter operations
// such as load, order and finish. Callers inspect the result rather than
// relying on panics or wrapped sentinel errors.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("purchase error %d: %s", e.Code, e.Message)
}

func NewError(code ErrorCode, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}
