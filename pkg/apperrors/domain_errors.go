package apperrors

// Domain errors returned by the connection, presence and chat services,
// mapped one-to-one onto RPC error replies.
var (
	ErrSelfConnection    = New(CodeSelfConnection, "cannot connect with yourself")
	ErrAlreadyConnected  = New(CodeAlreadyConnected, "already connected with this user")
	ErrPendingRequest    = New(CodePendingRequest, "connection request already pending")
	ErrNotFound          = New(CodeNotFound, "connection request not found")
	ErrForbidden         = New(CodeForbidden, "not authorized for this request")
	ErrNotConnected      = New(CodeNotConnected, "not connected with this user")
	ErrNotParticipant    = New(CodeNotParticipant, "not a participant in this conversation")
	ErrConnectionRemoved = New(CodeConnectionRemoved, "connection has been removed")

	ErrUnauthenticated = New(CodeUnauthenticated, "missing or invalid auth token")
	ErrInvalidArgument = New(CodeInvalidArgument, "invalid request")
	ErrRateLimited     = New(CodeRateLimited, "too many requests")
)
