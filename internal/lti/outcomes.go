package lti

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// OutcomesClient posts scores back to the LMS via LTI Basic Outcomes
// (replaceResult). One call per completion; a failure is recorded on
// the attempt and is terminal until an operator intervenes — no retry
// loop here.
type OutcomesClient struct {
	HTTP *http.Client
}

func NewOutcomesClient() *OutcomesClient {
	// Grade posting is off the student's critical path but still holds
	// a request slot; keep the timeout short.
	return &OutcomesClient{HTTP: &http.Client{Timeout: 5 * time.Second}}
}

// PostGrade sends score (0.0-1.0) to the outcomes service captured in
// the attempt's launch session, signed with the course's LTI secret.
func (c *OutcomesClient) PostGrade(ctx context.Context, session map[string]string, consumerKey, secret string, score float64) error {
	serviceURL, sourcedID, ok := OutcomeTarget(session)
	if !ok {
		return errors.New("launch session has no outcome service")
	}
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	body := replaceResultBody(sourcedID, score)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/xml")
	req.Header.Set("Authorization", oauthHeader(serviceURL, consumerKey, secret, body))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return httpErr("replaceResult", resp)
	}
	major, err := codeMajor(resp.Body)
	if err != nil {
		return fmt.Errorf("replaceResult: parse response: %w", err)
	}
	if major != "success" {
		return fmt.Errorf("replaceResult: platform returned codeMajor %q", major)
	}
	return nil
}

// oauthHeader builds the signed OAuth 1.0a Authorization header for a
// body-hash request (RFC 5849 plus the OAuth body-hash extension).
func oauthHeader(serviceURL, consumerKey, secret string, body []byte) string {
	sum := sha1.Sum(body)
	oauth := map[string]string{
		"oauth_consumer_key":     consumerKey,
		"oauth_nonce":            nonce(),
		"oauth_signature_method": "HMAC-SHA1",
		"oauth_timestamp":        strconv.FormatInt(time.Now().Unix(), 10),
		"oauth_version":          "1.0",
		"oauth_body_hash":        base64.StdEncoding.EncodeToString(sum[:]),
	}

	params := url.Values{}
	for k, v := range oauth {
		params.Set(k, v)
	}
	oauth["oauth_signature"] = sign(baseString(http.MethodPost, serviceURL, params), secret)

	var b strings.Builder
	b.WriteString(`OAuth realm=""`)
	for _, k := range []string{
		"oauth_consumer_key", "oauth_nonce", "oauth_signature_method",
		"oauth_timestamp", "oauth_version", "oauth_body_hash", "oauth_signature",
	} {
		fmt.Fprintf(&b, `,%s="%s"`, k, percentEncode(oauth[k]))
	}
	return b.String()
}

func nonce() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func replaceResultBody(sourcedID string, score float64) []byte {
	var sid bytes.Buffer
	_ = xml.EscapeText(&sid, []byte(sourcedID))

	var b bytes.Buffer
	fmt.Fprintf(&b, `<?xml version="1.0" encoding="UTF-8"?>
<imsx_POXEnvelopeRequest xmlns="http://www.imsglobal.org/services/ltiv1p1/xsd/imsoms_v1p0">
  <imsx_POXHeader>
    <imsx_POXRequestHeaderInfo>
      <imsx_version>V1.0</imsx_version>
      <imsx_messageIdentifier>%s</imsx_messageIdentifier>
    </imsx_POXRequestHeaderInfo>
  </imsx_POXHeader>
  <imsx_POXBody>
    <replaceResultRequest>
      <resultRecord>
        <sourcedGUID>
          <sourcedId>%s</sourcedId>
        </sourcedGUID>
        <result>
          <resultScore>
            <language>en</language>
            <textString>%s</textString>
          </resultScore>
        </result>
      </resultRecord>
    </replaceResultRequest>
  </imsx_POXBody>
</imsx_POXEnvelopeRequest>`,
		uuid.NewString(), sid.String(), strconv.FormatFloat(score, 'f', -1, 64))
	return b.Bytes()
}

// codeMajor scans the POX response for the imsx_codeMajor element.
func codeMajor(r io.Reader) (string, error) {
	dec := xml.NewDecoder(r)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return "", errors.New("no imsx_codeMajor in response")
		}
		if err != nil {
			return "", err
		}
		if se, ok := tok.(xml.StartElement); ok && se.Name.Local == "imsx_codeMajor" {
			var v string
			if err := dec.DecodeElement(&v, &se); err != nil {
				return "", err
			}
			return strings.TrimSpace(v), nil
		}
	}
}

// Uniform HTTP error helper.
func httpErr(op string, resp *http.Response) error {
	return fmt.Errorf("%s: platform returned %s", op, resp.Status)
}
