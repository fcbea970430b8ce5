// Package lti implements the tool side of an LTI 1.x integration: launch
// signature verification, the launch orchestrator, and Basic Outcomes
// grade passback.
package lti

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
)

var (
	ErrBadSignature = errors.New("invalid oauth signature")
	ErrMissingParam = errors.New("missing required launch parameter")
)

// Launch payload fields. The consumer key doubles as the course id.
const (
	ParamConsumerKey = "oauth_consumer_key"
	ParamUserID      = "user_id"
	ParamName        = "lis_person_name_full"
	ParamEmail       = "lis_person_contact_email_primary"
	ParamOutcomeURL  = "lis_outcome_service_url"
	ParamSourcedID   = "lis_result_sourcedid"
)

// ValidateSignature verifies the OAuth 1.0a HMAC-SHA1 signature of a
// launch POST against the course secret. The caller must have parsed
// the form. Pure check; no state is touched.
func ValidateSignature(r *http.Request, secret string) error {
	got := r.Form.Get("oauth_signature")
	if got == "" {
		return ErrBadSignature
	}
	params := url.Values{}
	for k, vs := range r.Form {
		if k == "oauth_signature" {
			continue
		}
		params[k] = vs
	}
	base := baseString(r.Method, requestURL(r), params)
	want := sign(base, secret)
	if !hmac.Equal([]byte(want), []byte(got)) {
		return ErrBadSignature
	}
	return nil
}

// CheckRequiredParams enforces the identity fields every launch must
// carry. Their absence is a validation failure distinct from a bad
// signature.
func CheckRequiredParams(form url.Values) error {
	for _, k := range []string{ParamUserID, ParamName, ParamEmail} {
		if strings.TrimSpace(form.Get(k)) == "" {
			return fmt.Errorf("%w: %s", ErrMissingParam, k)
		}
	}
	return nil
}

// baseString builds the RFC 5849 signature base string. Query
// parameters embedded in rawURL are folded into the parameter set.
func baseString(method, rawURL string, params url.Values) string {
	u, err := url.Parse(rawURL)
	if err == nil && u.RawQuery != "" {
		for k, vs := range u.Query() {
			params[k] = append(params[k], vs...)
		}
		u.RawQuery = ""
		rawURL = u.String()
	}

	var pairs []string
	for k, vs := range params {
		ek := percentEncode(k)
		for _, v := range vs {
			pairs = append(pairs, ek+"="+percentEncode(v))
		}
	}
	sort.Strings(pairs)

	return strings.ToUpper(method) + "&" +
		percentEncode(rawURL) + "&" +
		percentEncode(strings.Join(pairs, "&"))
}

// sign computes the HMAC-SHA1 signature for a base string. Launches
// have no token secret, so the key ends with a bare "&".
func sign(base, secret string) string {
	mac := hmac.New(sha1.New, []byte(percentEncode(secret)+"&"))
	mac.Write([]byte(base))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// percentEncode implements RFC 5849 §3.6 (stricter than net/url).
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9',
			c == '-', c == '.', c == '_', c == '~':
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// requestURL reconstructs the absolute launch URL as the LMS signed it,
// honoring proxy headers (launches commonly arrive via a TLS-terminating
// proxy).
func requestURL(r *http.Request) string {
	scheme := "http"
	if xf := r.Header.Get("X-Forwarded-Proto"); xf != "" {
		if i := strings.IndexByte(xf, ','); i >= 0 {
			xf = xf[:i]
		}
		scheme = strings.TrimSpace(xf)
	} else if r.TLS != nil {
		scheme = "https"
	}
	return scheme + "://" + r.Host + r.URL.Path
}
