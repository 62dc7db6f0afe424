package classify

import (
	"errors"
	"net"
	"testing"
)

func TestCallAborted(t *testing.T) {
	out := Call(Failure{Aborted: true, StatusCode: 500})
	if out.Category != CategoryAborted || out.Transient {
		t.Fatalf("expected aborted/non-transient, got %+v", out)
	}
}

func TestCallStatusCodes(t *testing.T) {
	cases := []struct {
		status    int
		wantCat   Category
		wantTrans bool
	}{
		{408, CategoryTimeout, true},
		{425, CategoryTimeout, true},
		{429, CategoryHTTP429, true},
		{500, CategoryHTTP5xx, true},
		{503, CategoryHTTP5xx, true},
		{400, CategoryHTTP4xx, false},
		{404, CategoryHTTP4xx, false},
		{200, CategoryUnknown, false},
	}
	for _, c := range cases {
		out := Call(Failure{StatusCode: c.status})
		if out.Category != c.wantCat || out.Transient != c.wantTrans {
			t.Fatalf("status=%d: expected {%s %v}, got %+v", c.status, c.wantCat, c.wantTrans, out)
		}
	}
}

func TestCallNetworkError(t *testing.T) {
	err := &net.OpError{Op: "dial", Err: errors.New("connection refused")}
	out := Call(Failure{Err: err})
	if out.Category != CategoryNetwork || !out.Transient {
		t.Fatalf("expected network/transient, got %+v", out)
	}
}

func TestCallUnknownError(t *testing.T) {
	out := Call(Failure{Err: errors.New("something odd happened")})
	if out.Category != CategoryUnknown || out.Transient {
		t.Fatalf("expected unknown/non-transient, got %+v", out)
	}
}

func TestReasonerResponseDefaultsToSchemaParseError(t *testing.T) {
	if got := ReasonerResponse(errors.New("totally unrecognized failure")); got != ReasonerSchemaParseError {
		t.Fatalf("expected schema_parse_error default, got %s", got)
	}
}

func TestReasonerResponseCategories(t *testing.T) {
	cases := []struct {
		msg  string
		want ReasonerCategory
	}{
		{"empty response from provider", ReasonerEmptyResponse},
		{"strategy must be oneof=sequential parallel mixed", ReasonerInvalidEnumValue},
		{"plan contains a dependency cycle", ReasonerStructuralInconsistency},
		{"confidence field violates gte=0,lte=1", ReasonerSemanticViolation},
		{"json: cannot unmarshal string into Go struct field", ReasonerSchemaParseError},
	}
	for _, c := range cases {
		if got := ReasonerResponse(errors.New(c.msg)); got != c.want {
			t.Fatalf("msg=%q: expected %s, got %s", c.msg, c.want, got)
		}
	}
}

func TestReasonerCategoryRepairable(t *testing.T) {
	if !ReasonerSemanticViolation.Repairable() {
		t.Fatalf("semantic_violation should be repairable")
	}
	if !ReasonerSchemaParseError.Repairable() {
		t.Fatalf("schema_parse_error should be repairable")
	}
	if ReasonerEmptyResponse.Repairable() {
		t.Fatalf("empty_response should not be repairable")
	}
	if ReasonerUnknown.Repairable() {
		t.Fatalf("unknown should not be repairable")
	}
}
