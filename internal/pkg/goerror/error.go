package goerror

import (
	"errors"
	"fmt"
)

// Type classifies errors into the high-level buckets used by the login flow.
type Type int

const (
	// TypeTransport represents network/DNS/TLS failures. They are
	// propagated as-is; retry policy belongs to the caller.
	TypeTransport Type = iota
	// TypePrecondition represents a missing input (roll number, password,
	// answer, session token) before a step that needs it. Always fatal,
	// never retried internally.
	TypePrecondition
	// TypePortal represents an explicit rejection by the portal (wrong
	// password, wrong answer, OTP mismatch, invalid roll number).
	// Retrying with the same input cannot succeed.
	TypePortal
	// TypeProtocol represents a violation of the portal's expected
	// contract (missing HTML element, missing response field, no SSO
	// token in the redirect). Indicates the portal changed underneath us.
	TypeProtocol
)

// String returns the string representation of the error type.
func (t Type) String() string {
	switch t {
	case TypePrecondition:
		return "ERROR_TYPE_PRECONDITION"
	case TypePortal:
		return "ERROR_TYPE_PORTAL_REJECTION"
	case TypeProtocol:
		return "ERROR_TYPE_PROTOCOL_VIOLATION"
	case TypeTransport:
		return "ERROR_TYPE_TRANSPORT"
	default:
		return "ERROR_TYPE_UNKNOWN"
	}
}

// Code is a stable identifier for each distinct failure mode.
type Code int

const (
	// CodeInternal represents an internal or unspecified error.
	CodeInternal Code = iota
	// CodeRollNumberMissing indicates no roll number was supplied or stored.
	CodeRollNumberMissing
	// CodePasswordMissing indicates no password was supplied or stored.
	CodePasswordMissing
	// CodeAnswerNotFound indicates the security answer was neither supplied
	// nor resolvable from the answer map.
	CodeAnswerNotFound
	// CodeSessionTokenMissing indicates the session token was not fetched yet.
	CodeSessionTokenMissing
	// CodeNotSignedIn indicates an operation that requires a completed
	// sign-in was called before one happened.
	CodeNotSignedIn
	// CodeInvalidState indicates an operation was called out of order.
	CodeInvalidState
	// CodeInvalidRollNumber indicates the portal rejected the roll number.
	CodeInvalidRollNumber
	// CodeWrongAnswer indicates the portal rejected the security answer.
	CodeWrongAnswer
	// CodeWrongPassword indicates the portal rejected the password.
	CodeWrongPassword
	// CodeOTPMismatch indicates the portal rejected the submitted OTP.
	CodeOTPMismatch
	// CodeOTPRequestRejected indicates the portal refused to send an OTP
	// for a reason other than the known sentinels.
	CodeOTPRequestRejected
	// CodeTokenNotFound indicates the session token element or its value
	// attribute is absent from the homepage HTML.
	CodeTokenNotFound
	// CodeMalformedResponse indicates an expected response field is absent.
	CodeMalformedResponse
	// CodeSSOTokenNotFound indicates the sign-in redirect carried no SSO token.
	CodeSSOTokenNotFound
	// CodeOTPNotInSubject indicates an OTP mail arrived whose subject holds
	// no 6-digit code. Distinct from "no mail yet".
	CodeOTPNotInSubject
	// CodeTransport indicates an underlying network failure.
	CodeTransport
)

// String returns the string representation of the error code.
func (c Code) String() string {
	switch c {
	case CodeRollNumberMissing:
		return "ERROR_CODE_ROLL_NUMBER_MISSING"
	case CodePasswordMissing:
		return "ERROR_CODE_PASSWORD_MISSING"
	case CodeAnswerNotFound:
		return "ERROR_CODE_ANSWER_NOT_FOUND"
	case CodeSessionTokenMissing:
		return "ERROR_CODE_SESSION_TOKEN_MISSING"
	case CodeNotSignedIn:
		return "ERROR_CODE_NOT_SIGNED_IN"
	case CodeInvalidState:
		return "ERROR_CODE_INVALID_STATE"
	case CodeInvalidRollNumber:
		return "ERROR_CODE_INVALID_ROLL_NUMBER"
	case CodeWrongAnswer:
		return "ERROR_CODE_WRONG_ANSWER"
	case CodeWrongPassword:
		return "ERROR_CODE_WRONG_PASSWORD"
	case CodeOTPMismatch:
		return "ERROR_CODE_OTP_MISMATCH"
	case CodeOTPRequestRejected:
		return "ERROR_CODE_OTP_REQUEST_REJECTED"
	case CodeTokenNotFound:
		return "ERROR_CODE_TOKEN_NOT_FOUND"
	case CodeMalformedResponse:
		return "ERROR_CODE_MALFORMED_RESPONSE"
	case CodeSSOTokenNotFound:
		return "ERROR_CODE_SSO_TOKEN_NOT_FOUND"
	case CodeOTPNotInSubject:
		return "ERROR_CODE_OTP_NOT_IN_SUBJECT"
	case CodeTransport:
		return "ERROR_CODE_TRANSPORT"
	default:
		return "ERROR_CODE_INTERNAL"
	}
}

// Error is a structured error used across the application.
//
// It can wrap an underlying error while also carrying a user-facing message,
// a high-level type, and a stable error code.
type Error struct {
	err     error
	msg     string
	errType Type
	code    Code
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.msg != "" {
		return e.msg
	}

	if e.err != nil {
		return e.err.Error()
	}

	return e.code.String()
}

// String returns a verbose representation of the error for debugging/logging.
func (e *Error) String() string {
	return fmt.Sprintf(
		"Error Type: %s, Code: %s, Message: %s, Underlying Error: %v",
		e.errType.String(),
		e.code.String(),
		e.msg,
		e.err,
	)
}

// Msg returns the user-facing error message, if set.
func (e *Error) Msg() string {
	return e.msg
}

// Type returns the high-level error type.
func (e *Error) Type() Type {
	return e.errType
}

// Code returns the stable error code.
func (e *Error) Code() Code {
	return e.code
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

func newError(err error, msg string, et Type, code Code) error {
	return &Error{err: err, msg: msg, errType: et, code: code}
}

// NewPrecondition creates a precondition error for a missing input.
func NewPrecondition(msg string, code Code) error {
	return newError(nil, msg, TypePrecondition, code)
}

// NewPortal creates a portal-rejection error with the specified message and code.
func NewPortal(msg string, code Code) error {
	return newError(nil, msg, TypePortal, code)
}

// NewProtocol creates a protocol-violation error with the specified message and code.
func NewProtocol(msg string, code Code) error {
	return newError(nil, msg, TypeProtocol, code)
}

// NewTransport wraps an underlying network error.
func NewTransport(err error) error {
	return newError(err, "", TypeTransport, CodeTransport)
}

// CodeOf extracts the stable code from err, or CodeInternal if err is not an
// *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.code
	}
	return CodeInternal
}

// TypeOf extracts the high-level type from err, or TypeTransport if err is
// not an *Error.
func TypeOf(err error) Type {
	var e *Error
	if errors.As(err, &e) {
		return e.errType
	}
	return TypeTransport
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.code == code
}
