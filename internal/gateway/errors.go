package gateway

import "errors"

var (
	ErrChannelNotFound      = errors.New("channel not found")
	ErrChannelInactive      = errors.New("channel inactive")
	ErrChannelFull          = errors.New("channel full")
	ErrChannelExists        = errors.New("channel already exists")
	ErrPermissionDenied     = errors.New("permission denied")
	ErrRateLimited          = errors.New("rate limited")
	ErrConnectionClosed     = errors.New("connection closed")
	ErrGatewayFull          = errors.New("gateway at connection capacity")
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrMalformedFrame       = errors.New("malformed frame")
	ErrUnknownMessageType   = errors.New("unknown message type")
)

// Machine codes carried in error frames so clients can branch without
// parsing human-readable text.
const (
	CodeInvalidMessage   = "INVALID_MESSAGE"
	CodeUnknownType      = "UNKNOWN_TYPE"
	CodeChannelNotFound  = "CHANNEL_NOT_FOUND"
	CodeChannelInactive  = "CHANNEL_INACTIVE"
	CodeChannelFull      = "CHANNEL_FULL"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeRateLimited      = "RATE_LIMITED"
	CodeMissingChannel   = "MISSING_CHANNEL"
	CodeUnknownAction    = "UNKNOWN_ACTION"
	CodeInternalError    = "INTERNAL_ERROR"
)

// WebSocket close codes clients can branch on. The 4xxx range is reserved
// for application use by RFC 6455.
const (
	CloseNormalShutdown       = 1000
	CloseInternalError        = 1011
	CloseAuthenticationFailed = 4001
	CloseCapacityExceeded     = 4002
)
