package apperrors

type Code string

const (
	CodeUnknown           Code = "UNKNOWN"
	CodeInternal          Code = "INTERNAL"
	CodeInvalidArgument   Code = "INVALID_ARGUMENT"
	CodeUnauthenticated   Code = "UNAUTHENTICATED"
	CodeRateLimited       Code = "RATE_LIMITED"
	CodeSelfConnection    Code = "SELF_CONNECTION"
	CodeAlreadyConnected  Code = "ALREADY_CONNECTED"
	CodePendingRequest    Code = "PENDING_REQUEST"
	CodeNotFound          Code = "NOT_FOUND"
	CodeForbidden         Code = "FORBIDDEN"
	CodeNotConnected      Code = "NOT_CONNECTED"
	CodeNotParticipant    Code = "NOT_PARTICIPANT"
	CodeConnectionRemoved Code = "CONNECTION_REMOVED"
)
