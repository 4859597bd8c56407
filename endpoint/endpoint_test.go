package endpoint

import (
	"net/url"
	"testing"
)

func TestSanitizeBaseURL(t *testing.T) {
	cases := map[string]string{
		"https://x.actor":    "https://x.actor",
		"https://x.actor/":   "https://x.actor",
		"https://x.actor///": "https://x.actor",
		"":                   "",
	}
	for in, want := range cases {
		if got := SanitizeBaseURL(in); got != want {
			t.Errorf("SanitizeBaseURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEventsURL(t *testing.T) {
	got := EventsURL("https://x.actor/", "https://dex.example/sol")
	want := "https://x.actor/events/dex/pairs?page_url=https%3A%2F%2Fdex.example%2Fsol"
	if got != want {
		t.Errorf("EventsURL = %q, want %q", got, want)
	}
}

func TestEventsURLRoundTrip(t *testing.T) {
	targets := []string{
		"https://dex.example/sol",
		"https://dex.example/search?q=a&b=c",
		"https://dex.example/pairs?f[0]=x&f[1]=y",
		"plain-target",
		"with spaces & symbols = [ok]",
	}
	for _, target := range targets {
		built := EventsURL("https://x.actor", target)
		u, err := url.Parse(built)
		if err != nil {
			t.Fatalf("built URL does not parse: %v", err)
		}
		if got := u.Query().Get("page_url"); got != target {
			t.Errorf("round-trip of %q yielded %q", target, got)
		}
	}
}

func TestHealthURL(t *testing.T) {
	if got := HealthURL("https://x.actor/"); got != "https://x.actor/health" {
		t.Errorf("HealthURL = %q", got)
	}
}

func TestValidateBaseURL(t *testing.T) {
	valid := []string{"https://x.actor", "http://localhost:8080", "https://x.actor/"}
	for _, in := range valid {
		if err := ValidateBaseURL(in); err != nil {
			t.Errorf("ValidateBaseURL(%q) = %v, want nil", in, err)
		}
	}

	invalid := []string{"", "   ", "ftp://x.actor", "not a url", "x.actor"}
	for _, in := range invalid {
		if err := ValidateBaseURL(in); err == nil {
			t.Errorf("ValidateBaseURL(%q) = nil, want error", in)
		}
	}
}

func TestValidateTargetAndCredential(t *testing.T) {
	if err := ValidateTarget(""); err == nil {
		t.Error("empty target should be rejected")
	}
	if err := ValidateTarget("https://dex.example/sol"); err != nil {
		t.Errorf("valid target rejected: %v", err)
	}
	if err := ValidateCredential(" "); err == nil {
		t.Error("blank credential should be rejected")
	}
	if err := ValidateCredential("apify_api_token"); err != nil {
		t.Errorf("valid credential rejected: %v", err)
	}
}
