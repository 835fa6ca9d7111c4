package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Use with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound         = fmt.Errorf("not found")
	ErrDuplicate        = fmt.Errorf("duplicate")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrPermissionDenied = fmt.Errorf("permission denied")
	ErrInvalidInput     = fmt.Errorf("invalid input")
	ErrProviderError    = fmt.Errorf("provider error")
)

// Sentinel errors for the domain layer.
var (
	ErrSessionNotFound  = fmt.Errorf("session not found")
	ErrAgentSetNotFound = fmt.Errorf("agent set not found")
	ErrToolNotFound     = fmt.Errorf("tool not found")
	ErrToolFailure      = fmt.Errorf("tool execution failed")
	ErrNotConnected     = fmt.Errorf("realtime transport not connected")
	ErrNoCredential     = fmt.Errorf("no ephemeral credential returned")
	ErrTransportClosed  = fmt.Errorf("realtime transport closed")
	ErrStaleConnection  = fmt.Errorf("connection attempt superseded")
	ErrStorage          = fmt.Errorf("storage operation failed")
	ErrCorruptData      = fmt.Errorf("persisted data is malformed")
	ErrRecorderInactive = fmt.Errorf("recorder has no captured audio")
	ErrCircuitOpen      = fmt.Errorf("circuit breaker open")

	// Gateway / RPC errors.
	ErrAuthInvalid       = fmt.Errorf("authentication failed")
	ErrGatewayAuthFailed = fmt.Errorf("gateway: %w", ErrAuthInvalid)
	ErrRPCMethodNotFound = fmt.Errorf("rpc method not found")
	ErrRPCInvalidPayload = fmt.Errorf("rpc payload invalid")
	ErrRateLimit         = fmt.Errorf("rate limit exceeded")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "SessionStore.Select")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "credential", "transport"); used for ErrorCode dispatch
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem for ErrorCode dispatch.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// IsRetryableError reports whether err is a transient error that may succeed on retry.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrRateLimit) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrCircuitOpen)
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown           ErrorCode = "UNKNOWN"
	CodeSessionNotFound   ErrorCode = "SESSION_NOT_FOUND"
	CodeAgentSetNotFound  ErrorCode = "AGENT_SET_NOT_FOUND"
	CodeToolNotFound      ErrorCode = "TOOL_NOT_FOUND"
	CodeToolFailure       ErrorCode = "TOOL_FAILURE"
	CodeToolDuplicate     ErrorCode = "TOOL_DUPLICATE"
	CodeToolTimeout       ErrorCode = "TOOL_TIMEOUT"
	CodeNotConnected      ErrorCode = "NOT_CONNECTED"
	CodeNoCredential      ErrorCode = "NO_CREDENTIAL"
	CodeCredentialTimeout ErrorCode = "CREDENTIAL_TIMEOUT"
	CodeCredentialFailure ErrorCode = "CREDENTIAL_FAILURE"
	CodeTransportClosed   ErrorCode = "TRANSPORT_CLOSED"
	CodeTransportDial     ErrorCode = "TRANSPORT_DIAL"
	CodeStaleConnection   ErrorCode = "STALE_CONNECTION"
	CodeStorage           ErrorCode = "STORAGE"
	CodeCorruptData       ErrorCode = "CORRUPT_DATA"
	CodeRecorderInactive  ErrorCode = "RECORDER_INACTIVE"
	CodeCircuitOpen       ErrorCode = "CIRCUIT_OPEN"
	CodeSupervisorFailure ErrorCode = "SUPERVISOR_FAILURE"
	CodeGatewayAuth       ErrorCode = "GATEWAY_AUTH"
	CodeRPCMethodNotFound ErrorCode = "RPC_METHOD_NOT_FOUND"
	CodeRPCInvalidPayload ErrorCode = "RPC_INVALID_PAYLOAD"
	CodeRateLimit         ErrorCode = "RATE_LIMIT"
	CodeAuthInvalid       ErrorCode = "AUTH_INVALID"

	// Category error codes: fallback codes when no subsystem-specific code matches.
	CodeNotFound         ErrorCode = "NOT_FOUND"
	CodeDuplicate        ErrorCode = "DUPLICATE"
	CodeTimeout          ErrorCode = "TIMEOUT"
	CodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	CodeInvalidInput     ErrorCode = "INVALID_INPUT"
	CodeProviderError    ErrorCode = "PROVIDER_ERROR"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
var errorCodeMap = map[error]ErrorCode{
	ErrNotFound:         CodeNotFound,
	ErrDuplicate:        CodeDuplicate,
	ErrTimeout:          CodeTimeout,
	ErrPermissionDenied: CodePermissionDenied,
	ErrInvalidInput:     CodeInvalidInput,
	ErrProviderError:    CodeProviderError,

	ErrSessionNotFound:   CodeSessionNotFound,
	ErrAgentSetNotFound:  CodeAgentSetNotFound,
	ErrToolNotFound:      CodeToolNotFound,
	ErrToolFailure:       CodeToolFailure,
	ErrNotConnected:      CodeNotConnected,
	ErrNoCredential:      CodeNoCredential,
	ErrTransportClosed:   CodeTransportClosed,
	ErrStaleConnection:   CodeStaleConnection,
	ErrStorage:           CodeStorage,
	ErrCorruptData:       CodeCorruptData,
	ErrRecorderInactive:  CodeRecorderInactive,
	ErrCircuitOpen:       CodeCircuitOpen,
	ErrGatewayAuthFailed: CodeGatewayAuth,
	ErrRPCMethodNotFound: CodeRPCMethodNotFound,
	ErrRPCInvalidPayload: CodeRPCInvalidPayload,
	ErrRateLimit:         CodeRateLimit,
	ErrAuthInvalid:       CodeAuthInvalid,
}

// subSystemCodeMap maps (category sentinel, subsystem) pairs to specific ErrorCodes.
var subSystemCodeMap = map[error]map[string]ErrorCode{
	ErrDuplicate: {
		"tool": CodeToolDuplicate,
	},
	ErrTimeout: {
		"tool":       CodeToolTimeout,
		"credential": CodeCredentialTimeout,
	},
	ErrProviderError: {
		"credential": CodeCredentialFailure,
		"transport":  CodeTransportDial,
		"supervisor": CodeSupervisorFailure,
	},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// It unwraps DomainError and uses errors.Is to match sentinel errors.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	if code, ok := errorCodeMap[err]; ok {
		return code
	}

	var de *DomainError
	if errors.As(err, &de) {
		if code := de.Code(); code != CodeUnknown {
			return code
		}
	}

	// Specific sentinels first so that ErrGatewayAuthFailed wins over ErrAuthInvalid.
	for sentinel, code := range errorCodeMap {
		if sentinel == ErrAuthInvalid {
			continue
		}
		if errors.Is(err, sentinel) {
			return code
		}
	}
	if errors.Is(err, ErrAuthInvalid) {
		return CodeAuthInvalid
	}

	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
// If SubSystem is set, checks the subSystemCodeMap for a specific code.
func (e *DomainError) Code() ErrorCode {
	if e.SubSystem != "" {
		if subsysMap, ok := subSystemCodeMap[e.Err]; ok {
			if code, ok := subsysMap[e.SubSystem]; ok {
				return code
			}
		}
	}
	if code, ok := errorCodeMap[e.Err]; ok {
		return code
	}
	return CodeUnknown
}
