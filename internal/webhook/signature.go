package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

// HeaderSignature carries the provider's HMAC signature.
const HeaderSignature = "ElevenLabs-Signature"

// secretPrefix is stripped from configured secrets before use.
const secretPrefix = "wsec_"

// DefaultTolerance bounds the age of a timestamped signature.
const DefaultTolerance = 5 * time.Minute

// Signature verification errors.
var (
	ErrMissingSignature   = errors.New("missing signature")
	ErrMalformedSignature = errors.New("malformed signature")
	ErrStaleSignature     = errors.New("signature timestamp outside tolerance")
	ErrSignatureMismatch  = errors.New("signature mismatch")
	ErrNoSecret           = errors.New("webhook secret not configured")
)

// Verifier checks signatures produced with one shared secret.
//
// Two header forms are accepted:
//   - "t=<unix>,v0=<hex>" (or v1): HMAC-SHA256 over "<unix>.<body>", and the
//     timestamp must be within Tolerance of Now.
//   - "v0=<hex>" (or v1, or a bare hex digest): HMAC-SHA256 over the body.
type Verifier struct {
	Secret    string
	Tolerance time.Duration
	// AllowUnsigned accepts every request when Secret is empty.
	AllowUnsigned bool
	Now           func() time.Time
}

// Verify returns nil when header is a valid signature of body.
func (v Verifier) Verify(body []byte, header string) error {
	secret := strings.TrimPrefix(strings.TrimSpace(v.Secret), secretPrefix)
	if secret == "" {
		if v.AllowUnsigned {
			return nil
		}
		return ErrNoSecret
	}

	header = strings.TrimSpace(header)
	if header == "" {
		return ErrMissingSignature
	}

	ts, digest, err := parseHeader(header)
	if err != nil {
		return err
	}

	signed := body
	if ts != "" {
		unix, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			return ErrMalformedSignature
		}
		tol := v.Tolerance
		if tol <= 0 {
			tol = DefaultTolerance
		}
		now := time.Now()
		if v.Now != nil {
			now = v.Now()
		}
		if age := now.Sub(time.Unix(unix, 0)); age > tol || age < -tol {
			return ErrStaleSignature
		}
		signed = append([]byte(ts+"."), body...)
	}

	got, err := hex.DecodeString(digest)
	if err != nil {
		return ErrMalformedSignature
	}
	if !hmac.Equal(got, mac(secret, signed)) {
		return ErrSignatureMismatch
	}
	return nil
}

// parseHeader splits a signature header into its timestamp (possibly empty)
// and hex digest.
func parseHeader(h string) (ts, digest string, err error) {
	if !strings.Contains(h, ",") {
		return "", stripVersion(h), nil
	}
	for _, part := range strings.Split(h, ",") {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, "t="):
			ts = part[2:]
		case strings.HasPrefix(part, "v0="), strings.HasPrefix(part, "v1="):
			digest = part[3:]
		}
	}
	if ts == "" || digest == "" {
		return "", "", ErrMalformedSignature
	}
	return ts, digest, nil
}

func stripVersion(s string) string {
	if strings.HasPrefix(s, "v0=") || strings.HasPrefix(s, "v1=") {
		return s[3:]
	}
	return s
}

func mac(secret string, msg []byte) []byte {
	m := hmac.New(sha256.New, []byte(secret))
	m.Write(msg)
	return m.Sum(nil)
}

// Sign builds a timestamped "t=…,v0=…" header for body. It is the inverse of
// Verify and is used by tests and local tooling.
func Sign(secret string, at time.Time, body []byte) string {
	secret = strings.TrimPrefix(strings.TrimSpace(secret), secretPrefix)
	ts := strconv.FormatInt(at.Unix(), 10)
	sum := mac(secret, append([]byte(ts+"."), body...))
	return "t=" + ts + ",v0=" + hex.EncodeToString(sum)
}

// Secrets holds per-event signing secrets. Empty per-event secrets fall back
// to General.
type Secrets struct {
	General string
	Started string
	Ended   string
}

// Kind identifies which webhook a secret applies to.
type Kind string

const (
	KindCallStarted Kind = "call_started"
	KindCallEnded   Kind = "call_ended"
)

// For returns the secret for kind.
func (s Secrets) For(kind Kind) string {
	switch kind {
	case KindCallStarted:
		if s.Started != "" {
			return s.Started
		}
	case KindCallEnded:
		if s.Ended != "" {
			return s.Ended
		}
	}
	return s.General
}
