package lti

import (
	"errors"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"
)

// launchForm builds a minimally complete launch payload.
func launchForm(consumerKey string) url.Values {
	f := url.Values{}
	f.Set("oauth_consumer_key", consumerKey)
	f.Set("oauth_nonce", "nonce123")
	f.Set("oauth_signature_method", "HMAC-SHA1")
	f.Set("oauth_timestamp", strconv.FormatInt(time.Now().Unix(), 10))
	f.Set("oauth_version", "1.0")
	f.Set("lti_message_type", "basic-lti-launch-request")
	f.Set(ParamUserID, "lti-u1")
	f.Set(ParamName, "Ada Lovelace")
	f.Set(ParamEmail, "ada@example.edu")
	return f
}

// signForm signs the way an LMS would: HMAC-SHA1 over the base string of
// the absolute launch URL and every form field.
func signForm(form url.Values, method, absURL, secret string) {
	params := url.Values{}
	for k, vs := range form {
		params[k] = append([]string(nil), vs...)
	}
	form.Set("oauth_signature", sign(baseString(method, absURL, params), secret))
}

func TestValidateSignatureRoundTrip(t *testing.T) {
	target := "http://tool.example/lti/launch/quiz/quiz1"
	form := launchForm("c1")
	signForm(form, "POST", target, "sekret")

	r := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if err := ValidateSignature(r, "sekret"); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
}

func TestValidateSignatureRejectsTampering(t *testing.T) {
	target := "http://tool.example/lti/launch/quiz/quiz1"

	cases := []struct {
		name   string
		mutate func(form url.Values)
		secret string
	}{
		{"changed param", func(f url.Values) { f.Set(ParamUserID, "someone-else") }, "sekret"},
		{"added param", func(f url.Values) { f.Set("extra", "1") }, "sekret"},
		{"wrong secret", func(f url.Values) {}, "not-the-secret"},
		{"stripped signature", func(f url.Values) { f.Del("oauth_signature") }, "sekret"},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			form := launchForm("c1")
			signForm(form, "POST", target, "sekret")
			c.mutate(form)

			r := httptest.NewRequest("POST", target, strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			if err := r.ParseForm(); err != nil {
				t.Fatal(err)
			}
			if err := ValidateSignature(r, c.secret); !errors.Is(err, ErrBadSignature) {
				t.Fatalf("err = %v, want ErrBadSignature", err)
			}
		})
	}
}

func TestValidateSignatureHonorsForwardedProto(t *testing.T) {
	// The LMS signed the public https URL; the request arrives over http
	// behind a TLS-terminating proxy.
	signedURL := "https://tool.example/lti/launch/quiz/quiz1"
	form := launchForm("c1")
	signForm(form, "POST", signedURL, "sekret")

	r := httptest.NewRequest("POST", "http://tool.example/lti/launch/quiz/quiz1", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.Header.Set("X-Forwarded-Proto", "https")
	if err := r.ParseForm(); err != nil {
		t.Fatal(err)
	}
	if err := ValidateSignature(r, "sekret"); err != nil {
		t.Fatalf("proxied launch rejected: %v", err)
	}
}

func TestCheckRequiredParams(t *testing.T) {
	form := launchForm("c1")
	if err := CheckRequiredParams(form); err != nil {
		t.Fatalf("complete form rejected: %v", err)
	}
	for _, missing := range []string{ParamUserID, ParamName, ParamEmail} {
		f := launchForm("c1")
		f.Set(missing, "  ")
		err := CheckRequiredParams(f)
		if !errors.Is(err, ErrMissingParam) {
			t.Fatalf("missing %s: err = %v, want ErrMissingParam", missing, err)
		}
		if !strings.Contains(err.Error(), missing) {
			t.Fatalf("error %q does not name the missing field %s", err, missing)
		}
	}
}

func TestPercentEncode(t *testing.T) {
	cases := []struct{ in, want string }{
		{"abc123", "abc123"},
		{"-._~", "-._~"},
		{"a b", "a%20b"},
		{"a/b", "a%2Fb"},
		{"a=b&c", "a%3Db%26c"},
		{"é", "%C3%A9"},
	}
	for _, c := range cases {
		if got := percentEncode(c.in); got != c.want {
			t.Errorf("percentEncode(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestBaseString(t *testing.T) {
	params := url.Values{}
	params.Set("b", "2")
	params.Set("a", "1")
	got := baseString("post", "http://x/y", params)
	want := "POST&http%3A%2F%2Fx%2Fy&a%3D1%26b%3D2"
	if got != want {
		t.Fatalf("baseString = %q, want %q", got, want)
	}
}

func TestBaseStringFoldsQuery(t *testing.T) {
	params := url.Values{}
	params.Set("a", "1")
	got := baseString("POST", "http://x/y?z=9", params)
	want := "POST&http%3A%2F%2Fx%2Fy&a%3D1%26z%3D9"
	if got != want {
		t.Fatalf("baseString = %q, want %q", got, want)
	}
}
