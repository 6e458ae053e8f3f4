package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestMetadataFor(t *testing.T) {
	tests := []struct {
		code Code
		want Metadata
	}{
		{CodeValidation, Metadata{HTTPStatus: http.StatusBadRequest, PublicMessage: "validation failed", ShowMessage: true, DetailsAllowed: true}},
		{CodeUnauthorized, Metadata{HTTPStatus: http.StatusUnauthorized, PublicMessage: "authentication required", ShowMessage: true}},
		{CodeRateLimit, Metadata{HTTPStatus: http.StatusTooManyRequests, PublicMessage: "rate limit exceeded", ShowMessage: true}},
		{CodeInsufficientBalance, Metadata{HTTPStatus: http.StatusUnprocessableEntity, PublicMessage: "insufficient balance", ShowMessage: true, DetailsAllowed: true}},
		{CodeInternal, Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}},
		{CodeDependency, Metadata{HTTPStatus: http.StatusServiceUnavailable, Retryable: true, PublicMessage: "dependency unavailable", DetailsAllowed: true}},
		{"NO_SUCH_CODE", Metadata{HTTPStatus: http.StatusInternalServerError, Retryable: true, PublicMessage: "internal server error"}},
	}
	for _, tt := range tests {
		if got := MetadataFor(tt.code); got != tt.want {
			t.Errorf("MetadataFor(%s) = %+v, want %+v", tt.code, got, tt.want)
		}
	}
}

func TestServerSideCodesHideTheirMessage(t *testing.T) {
	for code, meta := range metadataByCode {
		if meta.HTTPStatus >= http.StatusInternalServerError && meta.ShowMessage {
			t.Errorf("%s is a %d but exposes its message", code, meta.HTTPStatus)
		}
	}
}

func TestErrorText(t *testing.T) {
	cause := stdErrors.New("connection reset")
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{"plain", New(CodeNotFound, "order 4 not found"), "NOT_FOUND: order 4 not found"},
		{"formatted", Newf(CodeConflict, "order %d already %s", 9, "shipped"), "CONFLICT: order 9 already shipped"},
		{"wrapped", Wrap(CodeDependency, cause, "load wallet"), "DEPENDENCY_ERROR: load wallet: connection reset"},
		{"nil", nil, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Errorf("%s: Error() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNilErrorAccessors(t *testing.T) {
	var e *Error
	if e.Code() != CodeInternal || e.Message() != "" || e.Details() != nil || e.Unwrap() != nil {
		t.Fatalf("nil *Error accessors should return zero values")
	}
	if e.WithDetails("x") != nil {
		t.Fatalf("WithDetails on nil should stay nil")
	}
}

func TestWrapKeepsCauseReachable(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "reserve stock").WithDetails(map[string]any{"product_id": 3})
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("cause lost")
	}
	if wrapped.Details() == nil {
		t.Fatalf("details lost")
	}
}

func TestCodeLookupThroughWrapping(t *testing.T) {
	err := fmt.Errorf("purchase: %w", New(CodeInsufficientStock, "insufficient stock for product 7"))
	if !IsCode(err, CodeInsufficientStock) {
		t.Fatalf("expected wrapped insufficient stock code")
	}
	if IsCode(err, CodeInsufficientBalance) {
		t.Fatalf("unexpected balance code match")
	}
	if got := CodeOf(stdErrors.New("plain")); got != CodeInternal {
		t.Fatalf("expected internal for untyped error, got %s", got)
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}

	// The outermost coded error wins.
	outer := Wrap(CodeDependency, New(CodeNotFound, "row missing"), "load order")
	if got := CodeOf(outer); got != CodeDependency {
		t.Fatalf("expected outer code, got %s", got)
	}
}
