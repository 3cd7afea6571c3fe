package urlnorm

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		input  string
		raw    string
		scheme string
		host   string
		port   string
		path   string
	}{
		{"example.com", "http://example.com", "http", "example.com", "", "/"},
		{"  https://Example.COM:8443/login ", "https://Example.COM:8443/login", "https", "example.com", "8443", "/login"},
		{"HTTP://example.com/a", "HTTP://example.com/a", "http", "example.com", "", "/a"},
		{"http://example.com@evil.com/x", "http://example.com@evil.com/x", "http", "evil.com", "", "/x"},
		{"192.168.1.1/login", "http://192.168.1.1/login", "http", "192.168.1.1", "", "/login"},
	}

	for _, tc := range tests {
		got, err := Normalize(tc.input)
		if err != nil {
			t.Fatalf("Normalize(%q): unexpected error %v", tc.input, err)
		}
		if got.Raw != tc.raw || got.Scheme != tc.scheme || got.Host != tc.host || got.Port != tc.port || got.Path != tc.path {
			t.Errorf("Normalize(%q) = %+v", tc.input, got)
		}
	}
}

func TestNormalize_IDN(t *testing.T) {
	got, err := Normalize("http://bücher.example/")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Host != "bücher.example" {
		t.Errorf("Host = %q", got.Host)
	}
	if got.ASCIIHost != "xn--bcher-kva.example" {
		t.Errorf("ASCIIHost = %q", got.ASCIIHost)
	}
}

func TestNormalize_Invalid(t *testing.T) {
	for _, input := range []string{"", "   ", "\t\n", "http://", "http://%zz"} {
		_, err := Normalize(input)
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Normalize(%q): want ErrInvalidInput, got %v", input, err)
		}
	}
}
