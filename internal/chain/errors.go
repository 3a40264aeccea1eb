package chain

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/rpc"
)

// ErrorClass groups RPC failures by how they should be retried.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	ClassTransient
	ClassRateLimited
	ClassFatal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassRateLimited:
		return "rate_limited"
	case ClassFatal:
		return "fatal"
	default:
		return "other"
	}
}

var (
	// ErrBlockNotFound is returned when the node has no block at the height yet.
	ErrBlockNotFound = errors.New("block not found")
	// ErrReceiptNotFound is returned when the node has no receipt for a mined transaction.
	ErrReceiptNotFound = errors.New("receipt not found")
	// ErrTransactionNotFound is returned for unknown or pending transactions.
	ErrTransactionNotFound = errors.New("transaction not found")
)

// JSON-RPC codes some providers use for quota errors.
const (
	codeLimitExceeded = -32005
	codeRateLimited   = -32029
)

// CallError is returned once an RPC call gives up.
type CallError struct {
	Method   string
	Class    ErrorClass
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s) (%s): %v", e.Method, e.Attempts, e.Class, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// Classify maps an RPC error to its retry class.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOther
	}

	var callErr *CallError
	if errors.As(err, &callErr) {
		return callErr.Class
	}

	if errors.Is(err, context.Canceled) {
		return ClassFatal
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ClassTransient
	}
	if errors.Is(err, ErrBlockNotFound) || errors.Is(err, ErrReceiptNotFound) {
		return ClassTransient
	}
	if errors.Is(err, ErrTransactionNotFound) {
		return ClassOther
	}

	var httpErr rpc.HTTPError
	if errors.As(err, &httpErr) {
		switch httpErr.StatusCode {
		case http.StatusTooManyRequests:
			return ClassRateLimited
		case http.StatusRequestTimeout, http.StatusInternalServerError, http.StatusBadGateway,
			http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return ClassTransient
		case http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound:
			return ClassFatal
		}
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case codeLimitExceeded, codeRateLimited:
			return ClassRateLimited
		}
	}

	lower := strings.ToLower(err.Error())
	if containsAny(lower, rateLimitPhrases) {
		return ClassRateLimited
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ClassTransient
	}
	if containsAny(lower, transientPhrases) {
		return ClassTransient
	}

	return ClassOther
}

func containsAny(msg string, tokens []string) bool {
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}

var rateLimitPhrases = []string{
	"too many requests",
	"rate limit",
	"ratelimit",
	"rate-limit",
	"request limit",
	"limit exceeded",
	"quota exceeded",
	"exceeded the quota",
	"compute units",
	"capacity exceeded",
	"throttl",
}

var transientPhrases = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
	"connection reset",
	"connection refused",
	"broken pipe",
	"eof",
	"no such host",
	"temporarily unavailable",
	"temporary failure",
	"bad gateway",
	"service unavailable",
	"gateway timeout",
	"header not found",
	"server closed idle connection",
}
