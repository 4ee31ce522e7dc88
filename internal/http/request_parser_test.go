package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func newPost(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/cuadre/tarjetas", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestRequestBodyParser_FormAndJSON(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantValor   string
		wantJSON    bool
	}{
		{"form", "valor=40000&descripcion=+Taxi+", "application/x-www-form-urlencoded", "40000", false},
		{"json string", `{"valor":"1234,50"}`, "application/json", "1234,50", true},
		{"json number", `{"valor":60000}`, "application/json", "60000", true},
		{"empty body", "", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewRequestBodyParser(newPost(tt.body, tt.contentType))
			if err := p.Parse(); err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got := p.Get("valor"); got != tt.wantValor {
				t.Errorf("Get(valor) = %q, want %q", got, tt.wantValor)
			}
			if p.IsJSON() != tt.wantJSON {
				t.Errorf("IsJSON() = %v, want %v", p.IsJSON(), tt.wantJSON)
			}
		})
	}

	p := NewRequestBodyParser(newPost("descripcion=+Taxi%01+", "application/x-www-form-urlencoded"))
	_ = p.Parse()
	if got := p.Get("descripcion"); got != "Taxi" {
		t.Fatalf("Get should trim and strip control characters, got %q", got)
	}
}

func TestRequestBodyParser_AmountAndDate(t *testing.T) {
	p := NewRequestBodyParser(newPost("valor=1234,50&mal=abc&fecha=2024-06-01&otra=01/06/2024", "application/x-www-form-urlencoded"))
	if err := p.Parse(); err != nil {
		t.Fatal(err)
	}

	amt, err := p.Amount("valor")
	if err != nil || !amt.Equal(decimal.RequireFromString("1234.5")) {
		t.Fatalf("Amount(valor) = %s, %v", amt, err)
	}
	if _, err := p.Amount("mal"); err == nil {
		t.Fatal("Amount(mal) should fail")
	}
	if amt, err := p.Amount("missing"); err != nil || !amt.IsZero() {
		t.Fatalf("missing amount should be zero, got %s, %v", amt, err)
	}

	d, err := p.Date("fecha")
	if err != nil || d.String() != "2024-06-01" {
		t.Fatalf("Date(fecha) = %q, %v", d.String(), err)
	}
	if _, err := p.Date("otra"); err == nil {
		t.Fatal("Date(otra) should reject non ISO dates")
	}
	if d, err := p.Date("missing"); err != nil || !d.IsZero() {
		t.Fatalf("missing date should be zero, got %v, %v", d, err)
	}
}

func TestParseBodyOrFail(t *testing.T) {
	if _, resp := ParseBodyOrFail(newPost(`{"valor":`, "application/json")); resp == nil {
		t.Fatal("malformed JSON should fail")
	}

	big := strings.Repeat("a", maxBodyBytes+10)
	_, resp := ParseBodyOrFail(newPost("descripcion="+big, "application/x-www-form-urlencoded"))
	if resp == nil {
		t.Fatal("oversized body should fail")
	}
	w := httptest.NewRecorder()
	resp.Write(w)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("code = %d, want 413", w.Code)
	}
}

func TestRequireMethod(t *testing.T) {
	if RequirePOST(httptest.NewRequest(http.MethodPost, "/", nil)) != nil {
		t.Fatal("POST should pass")
	}
	if RequirePOST(httptest.NewRequest(http.MethodGet, "/", nil)) == nil {
		t.Fatal("GET should be rejected")
	}
}

func TestFormatPesos(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"0", "$0"},
		{"100000", "$100.000"},
		{"-60000", "-$60.000"},
		{"1234.5", "$1.234,50"},
		{"999", "$999"},
		{"1000000", "$1.000.000"},
	}
	for _, tt := range tests {
		if got := formatPesos(decimal.RequireFromString(tt.in)); got != tt.want {
			t.Errorf("formatPesos(%s) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
