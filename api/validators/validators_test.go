package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	pkgerrors "github.com/angelmondragon/handmade-market/pkg/errors"
	"github.com/angelmondragon/handmade-market/pkg/pagination"
)

func withRouteParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func TestParsePathID(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "42", want: 42},
		{raw: " 7 ", want: 7},
		{raw: "", wantErr: true},
		{raw: "0", wantErr: true},
		{raw: "-3", wantErr: true},
		{raw: "abc", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			req := withRouteParam(httptest.NewRequest(http.MethodGet, "/", nil), "orderId", tt.raw)
			got, err := ParsePathID(req, "orderId")
			if tt.wantErr {
				if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
					t.Fatalf("expected validation error, got %v", err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Fatalf("expected %d got %d (%v)", tt.want, got, err)
			}
		})
	}
}

func TestParsePagination(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	params, err := ParsePagination(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != pagination.DefaultLimit || params.Cursor != "" {
		t.Fatalf("unexpected defaults %+v", params)
	}

	cursor := pagination.EncodeCursor(pagination.Cursor{ID: 10})
	req = httptest.NewRequest(http.MethodGet, "/?limit=5&cursor="+cursor, nil)
	params, err = ParsePagination(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if params.Limit != 5 || params.Cursor != cursor {
		t.Fatalf("unexpected params %+v", params)
	}

	for _, query := range []string{"limit=0", "limit=1000", "limit=x", "cursor=%25%25bad"} {
		req = httptest.NewRequest(http.MethodGet, "/?"+query, nil)
		if _, err := ParsePagination(req); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", query, err)
		}
	}
}

func TestParseQueryInt64(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/?seller_id=9", nil)
	got, err := ParseQueryInt64(req, "seller_id")
	if err != nil || got == nil || *got != 9 {
		t.Fatalf("unexpected result %v %v", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	if got, err := ParseQueryInt64(req, "seller_id"); err != nil || got != nil {
		t.Fatalf("expected nil for missing parameter, got %v %v", got, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/?seller_id=-1", nil)
	if _, err := ParseQueryInt64(req, "seller_id"); err == nil {
		t.Fatalf("expected error for negative id")
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type payload struct {
		Email  string `json:"email" validate:"required,email"`
		Rating int    `json:"rating" validate:"omitempty,min=1,max=5"`
	}

	var ok payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@example.com","rating":4}`))
	if err := DecodeJSONBody(req, &ok); err != nil || ok.Email != "a@example.com" || ok.Rating != 4 {
		t.Fatalf("unexpected decode result %+v %v", ok, err)
	}

	cases := []struct {
		name    string
		body    string
		message string
	}{
		{"empty", ``, "request body is empty"},
		{"truncated", `{"email":`, "request body is truncated"},
		{"unknown field", `{"email":"a@example.com","extra":1}`, `unknown field "extra"`},
		{"wrong type", `{"email":"a@example.com","rating":"five"}`, "rating must be of type int"},
		{"two objects", `{"email":"a@example.com"}{"email":"b@example.com"}`, "request body must contain a single JSON object"},
		{"too large", `{"email":"` + strings.Repeat("a", MaxBodyBytes) + `"}`, "request body exceeds 1048576 bytes"},
		{"rule failure", `{"email":"nope","rating":9}`, "validation failed"},
	}
	for _, tc := range cases {
		var dest payload
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		typed := pkgerrors.As(DecodeJSONBody(req, &dest))
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Fatalf("%s: expected validation error, got %v", tc.name, typed)
		}
		if typed.Message() != tc.message {
			t.Fatalf("%s: message %q, want %q", tc.name, typed.Message(), tc.message)
		}
	}
}

func TestDecodeJSONBodyNamesFailingFields(t *testing.T) {
	type payload struct {
		Email  string `json:"email" validate:"required,email"`
		Rating int    `json:"rating" validate:"omitempty,min=1,max=5"`
		Body   string `json:"body" validate:"required"`
	}
	var dest payload
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","rating":9}`))
	details, _ := pkgerrors.As(DecodeJSONBody(req, &dest)).Details().(map[string]string)
	want := map[string]string{
		"email":  "must be a valid email",
		"rating": "must be at most 5",
		"body":   "is required",
	}
	if len(details) != len(want) {
		t.Fatalf("details %v, want %v", details, want)
	}
	for field, msg := range want {
		if details[field] != msg {
			t.Errorf("%s: %q, want %q", field, details[field], msg)
		}
	}
}

func TestCleanText(t *testing.T) {
	cases := []struct {
		name  string
		input string
		max   int
		want  string
	}{
		{name: "trims", input: "  hello  ", want: "hello"},
		{name: "truncates", input: "abcdef", max: 3, want: "abc"},
		{name: "counts runes not bytes", input: "tejido à mano", max: 8, want: "tejido à"},
		{name: "keeps multibyte intact", input: "日本の陶器", max: 2, want: "日本"},
		{name: "drops control characters", input: "mug\x00 with\x1b[31m lid", want: "mug with[31m lid"},
		{name: "keeps newlines and tabs", input: "line one\n\tline two", want: "line one\n\tline two"},
		{name: "drops invalid utf8", input: "vase\xff\xfe", want: "vase"},
		{name: "no trailing space after cut", input: "wool scarf", max: 5, want: "wool"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CleanText(tc.input, tc.max); got != tc.want {
				t.Fatalf("CleanText(%q, %d) = %q, want %q", tc.input, tc.max, got, tc.want)
			}
		})
	}
}
