package webhook

import (
	"encoding/hex"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

func TestParse_FullPayload(t *testing.T) {
	body := []byte(`{
		"conversation_id": "conv-1",
		"agent_id": 42,
		"duration": 125.9,
		"transcript": [{"role":"agent","message":"hola"}],
		"full_audio": "https://cdn/a.mp3",
		"start_time": "2025-03-10T10:00:00Z",
		"initial_message": "Necesito una consulta de urgencia",
		"conversation_initiation_client_data": {
			"dynamic_variables": {"patient_name": "Juan Pérez", "patient_phone": "+34 600 000 000"}
		}
	}`)
	p, err := Parse(body)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.ConversationID.String() != "conv-1" {
		t.Fatalf("conversation id = %q", p.ConversationID)
	}
	if p.AgentName() != "Dr. 42" {
		t.Fatalf("AgentName = %q", p.AgentName())
	}
	if p.PatientName() != "Juan Pérez" {
		t.Fatalf("PatientName = %q", p.PatientName())
	}
	if ph := p.PatientPhone(); ph == nil || *ph != "+34 600 000 000" {
		t.Fatalf("PatientPhone = %v", ph)
	}
	if p.Audio() != "https://cdn/a.mp3" {
		t.Fatalf("Audio = %q", p.Audio())
	}
	if !strings.Contains(p.Transcript.String(), `"message":"hola"`) {
		t.Fatalf("non-string transcript should be kept as JSON, got %q", p.Transcript)
	}
	if got := p.DurationSeconds(time.Now()); got != 125 {
		t.Fatalf("DurationSeconds = %d; want 125", got)
	}
	if in := p.ClassifyInput(); in.InitialMessage != "Necesito una consulta de urgencia" || in.CallType != "" {
		t.Fatalf("ClassifyInput = %+v", in)
	}
	if !strings.Contains(p.RawString(), "conv-1") {
		t.Fatalf("raw body not kept")
	}
}

func TestParse_Defaults(t *testing.T) {
	p, err := Parse([]byte(`{}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if p.PatientName() != domain.DefaultPatientName {
		t.Fatalf("PatientName = %q", p.PatientName())
	}
	if p.PatientPhone() != nil {
		t.Fatalf("PatientPhone should be nil")
	}
	if p.AgentName() != "Dr. unknown" {
		t.Fatalf("AgentName = %q", p.AgentName())
	}
	if p.DurationSeconds(time.Now()) != 0 {
		t.Fatalf("no timing data should yield 0")
	}
	if (Payload{}).RawString() != "{}" {
		t.Fatalf("zero payload raw should be {}")
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, body := range []string{"", "[]", "not json", `{"conversation_id":`} {
		if _, err := Parse([]byte(body)); !errors.Is(err, ErrInvalidPayload) {
			t.Fatalf("Parse(%q) err = %v; want ErrInvalidPayload", body, err)
		}
	}
	if _, err := Parse([]byte("null")); err != nil {
		t.Fatalf("null body should parse as empty payload: %v", err)
	}
}

func TestDurationSeconds_Fallbacks(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 5, 0, 0, time.UTC)
	cases := []struct {
		body string
		want int
	}{
		{`{"start_time":"2025-03-10T10:00:00Z","end_time":"2025-03-10T10:01:30.900Z"}`, 90},
		{`{"created_at":"2025-03-10 10:04:00"}`, 60},
		{`{"start_time":1741601040}`, 60},
		{`{"duration":0,"start_time":"2025-03-10T10:04:30Z"}`, 30},
		{`{"start_time":"garbage"}`, 0},
		{`{"start_time":"2025-03-10T10:06:00Z"}`, 0},
		{`{"duration":1e19,"start_time":"2025-03-10T10:04:00Z"}`, 60},
		{`{"duration":1e19}`, 0},
		{`{"duration":2147483647}`, 2147483647},
		{`{"start_time":"0001-01-01T00:00:01Z"}`, 2147483647},
	}
	for _, c := range cases {
		p, err := Parse([]byte(c.body))
		if err != nil {
			t.Fatalf("Parse(%s): %v", c.body, err)
		}
		if got := p.DurationSeconds(now); got != c.want {
			t.Fatalf("DurationSeconds(%s) = %d; want %d", c.body, got, c.want)
		}
	}
}

func TestVerifier_TimestampedRoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"conversation_id":"c1"}`)
	v := Verifier{Secret: "wsec_topsecret", Now: func() time.Time { return now }}

	header := Sign("topsecret", now.Add(-time.Minute), body)
	if err := v.Verify(body, header); err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if err := v.Verify([]byte(`{"conversation_id":"c2"}`), header); !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("tampered body err = %v", err)
	}
	stale := Sign("topsecret", now.Add(-10*time.Minute), body)
	if err := v.Verify(body, stale); !errors.Is(err, ErrStaleSignature) {
		t.Fatalf("stale err = %v", err)
	}
}

func TestVerifier_BareDigest(t *testing.T) {
	body := []byte(`{}`)
	v := Verifier{Secret: "s3cret"}
	digest := hexMAC("s3cret", body)
	for _, h := range []string{digest, "v0=" + digest, "v1=" + digest} {
		if err := v.Verify(body, h); err != nil {
			t.Fatalf("Verify(%q): %v", h, err)
		}
	}
}

func TestVerifier_Errors(t *testing.T) {
	body := []byte(`{}`)
	v := Verifier{Secret: "s"}
	if err := v.Verify(body, ""); !errors.Is(err, ErrMissingSignature) {
		t.Fatalf("missing err = %v", err)
	}
	if err := v.Verify(body, "t=1,x=2"); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("malformed err = %v", err)
	}
	if err := v.Verify(body, "v0=zz"); !errors.Is(err, ErrMalformedSignature) {
		t.Fatalf("non-hex err = %v", err)
	}
	if err := (Verifier{}).Verify(body, "v0=00"); !errors.Is(err, ErrNoSecret) {
		t.Fatalf("no secret err = %v", err)
	}
	if err := (Verifier{AllowUnsigned: true}).Verify(body, ""); err != nil {
		t.Fatalf("unsigned mode should accept: %v", err)
	}
}

func TestSecrets_For(t *testing.T) {
	s := Secrets{General: "g", Started: "s"}
	if s.For(KindCallStarted) != "s" {
		t.Fatalf("started secret not used")
	}
	if s.For(KindCallEnded) != "g" {
		t.Fatalf("ended should fall back to general")
	}
}

func hexMAC(secret string, body []byte) string {
	return hex.EncodeToString(mac(secret, body))
}
