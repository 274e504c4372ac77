package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 11000-11999: Testbench errors
// 12000-12999: Sandbox errors
// 13000-13999: Toolchain (compile/simulate) errors
// 14000-14999: Result parsing & scoring errors
// 15000-15999: LMS collaborator errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10004
	ServiceUnavailable  ErrorCode = 10005

	// Database errors
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Storage errors
	StorageError   ErrorCode = 10200
	ObjectNotFound ErrorCode = 10201

	// Validation errors
	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10301

	// ========== Testbench Errors (11000-11999) ==========

	// TestbenchNotReady means the testbench directory was just created and
	// the assignment has nothing to grade yet.
	TestbenchNotReady ErrorCode = 11000
	// TestbenchMissing means the directory exists but holds no source files.
	TestbenchMissing ErrorCode = 11001

	// ========== Sandbox Errors (12000-12999) ==========

	SandboxError        ErrorCode = 12000
	SandboxStageFailed  ErrorCode = 12001
	SandboxNoSources    ErrorCode = 12002
	SandboxArchiveError ErrorCode = 12100

	// ========== Toolchain Errors (13000-13999) ==========

	CompilationError  ErrorCode = 13000
	SimulationError   ErrorCode = 13001
	SimulationTimeout ErrorCode = 13002
	ToolchainError    ErrorCode = 13003

	// ========== Parse & Score Errors (14000-14999) ==========

	ParseAmbiguous ErrorCode = 14000
	NoGradingLines ErrorCode = 14001

	// ========== LMS Collaborator Errors (15000-15999) ==========

	UpstreamServiceError ErrorCode = 15000
	RosterUnavailable    ErrorCode = 15001
	SubmissionFetchError ErrorCode = 15002
	GradePostFailed      ErrorCode = 15003
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success: "success",

	InternalServerError: "internal server error",
	InvalidParams:       "invalid parameters",
	NotFound:            "resource not found",
	Timeout:             "operation timed out",
	ServiceUnavailable:  "service unavailable",

	DatabaseError:  "database error",
	RecordNotFound: "record not found",

	StorageError:   "object storage error",
	ObjectNotFound: "object not found",

	ValidationFailed:   "validation failed",
	RequiredFieldEmpty: "required field is empty",

	TestbenchNotReady: "testbench directory created, add a testbench before grading",
	TestbenchMissing:  "no testbench source file found for assignment",

	SandboxError:        "sandbox error",
	SandboxStageFailed:  "staging submission files into sandbox failed",
	SandboxNoSources:    "submission contains no source files",
	SandboxArchiveError: "sandbox archive failed",

	CompilationError:  "compilation failed",
	SimulationError:   "simulation failed",
	SimulationTimeout: "simulation exceeded time limit",
	ToolchainError:    "toolchain invocation failed",

	ParseAmbiguous: "malformed grading output line",
	NoGradingLines: "no grading output detected",

	UpstreamServiceError: "upstream service error",
	RosterUnavailable:    "roster retrieval failed",
	SubmissionFetchError: "submission retrieval failed",
	GradePostFailed:      "grade posting failed",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == InvalidParams, c >= 10300 && c < 10400:
		return 400
	case c == NotFound, c == RecordNotFound, c == ObjectNotFound:
		return 404
	case c == Timeout, c == SimulationTimeout:
		return 504
	case c == ServiceUnavailable, c >= 15000 && c < 16000:
		return 503
	default:
		return 500
	}
}
