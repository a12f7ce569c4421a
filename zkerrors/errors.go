package zkerrors

import (
	"errors"
	"strings"
)

// Storage (N/C) Errors
var (
	ErrNotFound = errors.New("N1|NotFound: Key is not present in the store.")
	ErrCorrupt  = errors.New("C1|Corrupt: Stored data does not decode to a well-formed value.")
	ErrOverflow = errors.New("C2|Overflow: Value does not fit in the scalar field.")
)

// Batch (B) Errors
var (
	ErrStaleBatch          = errors.New("B1|StaleBatch: Batch was built on a root that is no longer the state root.")
	ErrAlreadyExecuted     = errors.New("B2|AlreadyExecuted: Batch has already been executed.")
	ErrNotExecuted         = errors.New("B3|NotExecuted: Batch must be executed before consolidation.")
	ErrBatchAborted        = errors.New("B4|BatchAborted: Executor aborted the batch.")
	ErrInvalidBatch        = errors.New("B5|InvalidBatch: Batch does not belong to this state db.")
	ErrAlreadyConsolidated = errors.New("B6|AlreadyConsolidated: Batch has already been consolidated.")
)

// State DB (S) Errors
var (
	ErrArityMismatch      = errors.New("S1|ArityMismatch: Store was initialized with a different arity.")
	ErrChainIDMismatch    = errors.New("S2|ChainIDMismatch: Store was initialized with a different chain id.")
	ErrHasherMismatch     = errors.New("S3|HasherMismatch: Store was initialized with a different hasher.")
	ErrAlreadyInitialized = errors.New("S4|AlreadyInitialized: Store already holds consolidated batches.")
	ErrInvalidArity       = errors.New("S5|InvalidArity: Arity must be at least 2.")
)

// GetErrorName extracts the error name from the error message.
func GetErrorName(err error) string {
	if err == nil {
		return "No Error"
	}
	errStr := err.Error()
	if !strings.Contains(errStr, "|") || !strings.Contains(errStr, ":") {
		return errStr
	}
	// wrapped errors carry a prefix before the code
	if i := strings.LastIndex(errStr[:strings.Index(errStr, "|")], " "); i >= 0 {
		errStr = errStr[i+1:]
	}
	parts := strings.SplitN(errStr, "|", 2)
	nameParts := strings.SplitN(parts[1], ":", 2)
	return strings.TrimSpace(nameParts[0])
}

func GetErrorNames(errs []error) []string {
	errStrs := make([]string, len(errs))
	for i, err := range errs {
		errStrs[i] = GetErrorName(err)
	}
	return errStrs
}

// GetErrorCode extracts the error code from the error message.
func GetErrorCode(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	idx := strings.Index(errStr, "|")
	if idx < 0 {
		return ""
	}
	code := errStr[:idx]
	if i := strings.LastIndex(code, " "); i >= 0 {
		code = code[i+1:]
	}
	return strings.TrimSpace(code)
}

// GetErrorCodeWithName returns the error code and name in the format "Code_ErrorName".
func GetErrorCodeWithName(err error) string {
	code := GetErrorCode(err)
	name := GetErrorName(err)
	if code == "" || name == "" {
		return ""
	}
	return code + "_" + name
}

// GetErrorDesc extracts the error description from the error message.
func GetErrorDesc(err error) string {
	if err == nil {
		return ""
	}
	errStr := err.Error()
	if i := strings.Index(errStr, "|"); i >= 0 {
		errStr = errStr[i:]
	}
	parts := strings.SplitN(errStr, ":", 2)
	if len(parts) < 2 {
		return "DESC NOT SET"
	}
	return strings.TrimSpace(parts[1])
}
