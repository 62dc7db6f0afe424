// Package classify maps raw failures to the category taxonomy the Retry
// Policy and Circuit Breaker consume. No library in the pack (or the wider
// ecosystem) packages "map an error/status to a category enum" more
// directly than a plain switch, so both classifiers here are stdlib-only
// by necessity.
package classify

import (
	"errors"
	"net"
	"strings"
)

// Category is an endpoint-call failure category.
type Category string

const (
	CategoryNetwork   Category = "network"
	CategoryTimeout   Category = "timeout"
	CategoryAborted   Category = "aborted"
	CategoryHTTP4xx   Category = "http_4xx"
	CategoryHTTP5xx   Category = "http_5xx"
	CategoryHTTP429   Category = "http_429"
	CategoryUnknown   Category = "unknown"
)

// Outcome is what a Failure Classifier returns: a category plus whether
// the failure is worth retrying.
type Outcome struct {
	Category  Category
	Transient bool
}

// Failure is the input to Call: at most one of Err or StatusCode is
// meaningful for a given call, plus an explicit abort flag.
type Failure struct {
	Err        error
	StatusCode int
	Aborted    bool
}

// Call classifies a single endpoint-call failure.
//
// Rules: aborted always wins and is non-transient; status 408/425/429/5xx
// are transient; any other 4xx is non-transient; an I/O or socket error
// with no status code is network, transient.
func Call(f Failure) Outcome {
	if f.Aborted {
		return Outcome{Category: CategoryAborted, Transient: false}
	}
	if f.StatusCode > 0 {
		return classifyStatus(f.StatusCode)
	}
	if f.Err != nil {
		if isNetworkError(f.Err) {
			return Outcome{Category: CategoryNetwork, Transient: true}
		}
	}
	return Outcome{Category: CategoryUnknown, Transient: false}
}

func classifyStatus(status int) Outcome {
	switch {
	case status == 429:
		return Outcome{Category: CategoryHTTP429, Transient: true}
	case status == 408 || status == 425:
		return Outcome{Category: CategoryTimeout, Transient: true}
	case status >= 500:
		return Outcome{Category: CategoryHTTP5xx, Transient: true}
	case status >= 400:
		return Outcome{Category: CategoryHTTP4xx, Transient: false}
	default:
		return Outcome{Category: CategoryUnknown, Transient: false}
	}
}

// isNetworkError reports whether err looks like a socket/IO failure rather
// than an application error: net.Error, wrapped net.OpError, or a timeout.
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "no such host", "broken pipe", "i/o timeout", "eof"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// ReasonerCategory is the failure taxonomy for a malformed reasoner
// response, distinct from Category above.
type ReasonerCategory string

const (
	ReasonerSemanticViolation        ReasonerCategory = "semantic_violation"
	ReasonerInvalidEnumValue         ReasonerCategory = "invalid_enum_value"
	ReasonerStructuralInconsistency  ReasonerCategory = "structural_inconsistency"
	ReasonerSchemaParseError         ReasonerCategory = "schema_parse_error"
	ReasonerEmptyResponse            ReasonerCategory = "empty_response"
	ReasonerUnknown                  ReasonerCategory = "unknown"
)

// Repairable reports whether a one-shot repair attempt is worth making for
// this category. Per the taxonomy, only semantic_violation and
// schema_parse_error are.
func (c ReasonerCategory) Repairable() bool {
	return c == ReasonerSemanticViolation || c == ReasonerSchemaParseError
}

// ReasonerResponse classifies the exception/validation-error message
// produced while parsing or validating a reasoner response. Defaults to
// schema_parse_error when nothing more specific matches, per the taxonomy.
func ReasonerResponse(err error) ReasonerCategory {
	if err == nil {
		return ReasonerUnknown
	}
	msg := strings.ToLower(err.Error())
	if msg == "" {
		return ReasonerSchemaParseError
	}
	switch {
	case strings.Contains(msg, "empty response") || strings.Contains(msg, "no content"):
		return ReasonerEmptyResponse
	case strings.Contains(msg, "oneof") || strings.Contains(msg, "enum") || strings.Contains(msg, "not a valid value"):
		return ReasonerInvalidEnumValue
	case strings.Contains(msg, "dependson") || strings.Contains(msg, "cycle") || strings.Contains(msg, "dangling") || strings.Contains(msg, "inconsistent"):
		return ReasonerStructuralInconsistency
	case strings.Contains(msg, "required") || strings.Contains(msg, "gte") || strings.Contains(msg, "lte") || strings.Contains(msg, "confidence") || strings.Contains(msg, "violat"):
		return ReasonerSemanticViolation
	case strings.Contains(msg, "unmarshal") || strings.Contains(msg, "unexpected end of json") || strings.Contains(msg, "invalid character") || strings.Contains(msg, "parse"):
		return ReasonerSchemaParseError
	default:
		return ReasonerSchemaParseError
	}
}
