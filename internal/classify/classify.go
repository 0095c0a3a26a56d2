// Package classify derives a call's type and priority from the inbound
// webhook. The keyword heuristic lives behind the Classifier interface so it
// can be swapped or tested without touching persistence.
package classify

import (
	"strings"

	"golang.org/x/text/cases"

	"github.com/tbourn/callcenter-backend/internal/domain"
)

// Input is the subset of a webhook that classification looks at.
type Input struct {
	// InitialMessage is the caller's first utterance.
	InitialMessage string
	// CallType and Priority are explicit overrides from dynamic variables.
	CallType string
	Priority string
}

// Result is the outcome of classifying a call.
type Result struct {
	CallType domain.CallType
	Priority domain.Priority
}

// Classifier assigns a call type and priority.
type Classifier interface {
	Classify(in Input) Result
}

// Rule maps any of its keywords to a call type.
type Rule struct {
	Keywords []string
	CallType domain.CallType
}

// DefaultRules are checked in order; the first rule with a matching keyword wins.
var DefaultRules = []Rule{
	{Keywords: []string{"urgencia", "emergencia"}, CallType: domain.CallTypeUrgent},
	{Keywords: []string{"seguimiento", "control"}, CallType: domain.CallTypeFollowUp},
	{Keywords: []string{"información", "consulta"}, CallType: domain.CallTypeInformation},
}

// KeywordClassifier matches case-folded substrings of the initial message.
type KeywordClassifier struct {
	Rules    []Rule
	Fallback domain.CallType
}

// NewKeywordClassifier returns a classifier loaded with DefaultRules.
func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{Rules: DefaultRules, Fallback: domain.CallTypeGeneral}
}

// Classify implements Classifier. Explicit overrides are used verbatim;
// otherwise the call type comes from the keyword rules and the priority is
// mapped from the call type.
func (k *KeywordClassifier) Classify(in Input) Result {
	ct := domain.CallType(strings.TrimSpace(in.CallType))
	if ct == "" {
		ct = k.callType(in.InitialMessage)
	}
	p := domain.Priority(strings.TrimSpace(in.Priority))
	if p == "" {
		p = PriorityFor(ct)
	}
	return Result{CallType: ct, Priority: p}
}

func (k *KeywordClassifier) callType(msg string) domain.CallType {
	fallback := k.Fallback
	if fallback == "" {
		fallback = domain.CallTypeGeneral
	}
	if strings.TrimSpace(msg) == "" {
		return fallback
	}
	folder := cases.Fold()
	folded := folder.String(msg)
	for _, r := range k.Rules {
		for _, kw := range r.Keywords {
			if strings.Contains(folded, folder.String(kw)) {
				return r.CallType
			}
		}
	}
	return fallback
}

// PriorityFor maps a call type to its default priority.
func PriorityFor(ct domain.CallType) domain.Priority {
	switch ct {
	case domain.CallTypeUrgent:
		return domain.PriorityUrgent
	case domain.CallTypeFollowUp:
		return domain.PriorityHigh
	case domain.CallTypeInformation:
		return domain.PriorityLow
	default:
		return domain.PriorityNormal
	}
}
