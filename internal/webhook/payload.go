// Package webhook models the call-automation provider's webhook: the loosely
// typed JSON payload sent when a call starts or ends, and the HMAC signature
// that authenticates it.
//
// Payloads are not schema-validated. Every field is optional and the raw body
// is kept verbatim so it can be stored alongside the call.
package webhook

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/tbourn/callcenter-backend/internal/classify"
	"github.com/tbourn/callcenter-backend/internal/domain"
	"github.com/tbourn/callcenter-backend/internal/sysutil"
)

// ErrInvalidPayload is returned by Parse when the body is not a JSON object.
var ErrInvalidPayload = errors.New("invalid JSON payload")

// DynamicVariables carries caller data collected by the voice agent.
type DynamicVariables struct {
	UserName     Text `json:"user_name"`
	PatientName  Text `json:"patient_name"`
	Phone        Text `json:"phone"`
	PatientPhone Text `json:"patient_phone"`
	CallType     Text `json:"call_type"`
	Priority     Text `json:"priority"`
}

// ClientData wraps the dynamic variables block.
type ClientData struct {
	DynamicVariables *DynamicVariables `json:"dynamic_variables"`
}

// Payload is the inbound webhook body for call start and call end events.
type Payload struct {
	ConversationID Text        `json:"conversation_id"`
	AgentID        Text        `json:"agent_id"`
	Duration       *float64    `json:"duration"`
	Transcript     Text        `json:"transcript"`
	AudioURL       Text        `json:"audio_url"`
	FullAudio      Text        `json:"full_audio"`
	StartTime      Timestamp   `json:"start_time"`
	EndTime        Timestamp   `json:"end_time"`
	CreatedAt      Timestamp   `json:"created_at"`
	InitialMessage Text        `json:"initial_message"`
	ClientData     *ClientData `json:"conversation_initiation_client_data"`

	// Raw is the body exactly as received.
	Raw json.RawMessage `json:"-"`
}

// Parse decodes body into a Payload. Anything other than a JSON object (or
// null) is rejected with ErrInvalidPayload.
func Parse(body []byte) (Payload, error) {
	var p Payload
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return p, ErrInvalidPayload
	}
	if bytes.Equal(trimmed, []byte("null")) {
		p.Raw = json.RawMessage("{}")
		return p, nil
	}
	if trimmed[0] != '{' {
		return p, ErrInvalidPayload
	}
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return p, errors.Join(ErrInvalidPayload, err)
	}
	p.Raw = append(json.RawMessage(nil), trimmed...)
	return p, nil
}

// RawString returns the verbatim body, or "{}" for payloads built in code.
func (p Payload) RawString() string {
	if len(p.Raw) == 0 {
		return "{}"
	}
	return string(p.Raw)
}

func (p Payload) vars() DynamicVariables {
	if p.ClientData == nil || p.ClientData.DynamicVariables == nil {
		return DynamicVariables{}
	}
	return *p.ClientData.DynamicVariables
}

// PatientName returns user_name, then patient_name, then the placeholder.
func (p Payload) PatientName() string {
	v := p.vars()
	if s := sysutil.FirstNonEmpty(v.UserName.String(), v.PatientName.String()); s != "" {
		return s
	}
	return domain.DefaultPatientName
}

// PatientPhone returns phone, then patient_phone, or nil when neither is set.
func (p Payload) PatientPhone() *string {
	v := p.vars()
	if s := sysutil.FirstNonEmpty(v.Phone.String(), v.PatientPhone.String()); s != "" {
		return &s
	}
	return nil
}

// AgentName formats the provider agent id as the initial agent.
func (p Payload) AgentName() string {
	id := p.AgentID.String()
	if id == "" {
		id = "unknown"
	}
	return "Dr. " + id
}

// Audio returns audio_url, falling back to full_audio.
func (p Payload) Audio() string {
	return sysutil.FirstNonEmpty(p.AudioURL.String(), p.FullAudio.String())
}

// ClassifyInput extracts the fields the classifier looks at.
func (p Payload) ClassifyInput() classify.Input {
	v := p.vars()
	return classify.Input{
		InitialMessage: p.InitialMessage.String(),
		CallType:       v.CallType.String(),
		Priority:       v.Priority.String(),
	}
}

// DurationSeconds returns the explicit duration when positive and no larger
// than domain.MaxDurationSeconds, otherwise the floor of end-start where
// start is start_time (or created_at) and end is end_time (or now). Without a
// usable start it returns 0.
func (p Payload) DurationSeconds(now time.Time) int {
	if d := p.Duration; d != nil && *d > 0 && *d <= domain.MaxDurationSeconds {
		return int(math.Floor(*d))
	}
	start := p.StartTime
	if start.IsZero() {
		start = p.CreatedAt
	}
	if start.IsZero() {
		return 0
	}
	end := now
	if !p.EndTime.IsZero() {
		end = p.EndTime.Time
	}
	return domain.WholeSeconds(end.Sub(start.Time))
}

// Text is a string field that tolerates non-string JSON. Numbers are kept in
// their literal form; objects and arrays are kept as compact JSON.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, b); err != nil {
		return err
	}
	*t = Text(buf.String())
	return nil
}

// String returns the trimmed value.
func (t Text) String() string { return strings.TrimSpace(string(t)) }

// Timestamp accepts RFC 3339 strings, "2006-01-02 15:04:05" strings, or
// unix seconds. Values that cannot be parsed decode to the zero time.
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// UnmarshalJSON implements json.Unmarshaler.
func (ts *Timestamp) UnmarshalJSON(b []byte) error {
	ts.Time = time.Time{}
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		return nil
	}
	if b[0] != '"' {
		if f, err := strconv.ParseFloat(string(b), 64); err == nil && f > 0 {
			sec, frac := math.Modf(f)
			ts.Time = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return nil
	}
	ts.Time = parseTime(strings.TrimSpace(s))
	return nil
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC()
		}
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n > 0 {
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}
