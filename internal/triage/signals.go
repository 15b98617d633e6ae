package triage

import (
	"strings"

	"github.com/linnemanlabs/mailwatch/internal/message"
)

// defaultUrgencyKeywords is the stock urgency vocabulary checked against
// subjects when the rules file does not override it.
var defaultUrgencyKeywords = []string{
	"urgent", "important", "asap", "deadline", "critical", "immediate",
}

// SignalRules is the read-only slice of configuration the extractor needs:
// who the user is, who their VIPs are, and which words matter to them.
type SignalRules struct {
	UserAddress     string
	VIPContacts     []string
	CustomKeywords  []string
	UrgencyKeywords []string
}

// Signals is the structured feature set derived from one message. Annotation
// labels are carried through lowercased; empty means the annotation was
// absent, which every consumer treats as neutral.
type Signals struct {
	VIPSender         bool
	SubjectUrgency    bool
	SubjectKeyword    bool
	BodyKeyword       bool
	DirectlyAddressed bool
	HasActionItems    bool

	Classification string
	Intent         string
	Sentiment      string
}

// ExtractSignals derives scoring features from a message. It never fails:
// missing optional fields simply yield neutral signals.
func ExtractSignals(m *message.Message, r SignalRules) Signals {
	var s Signals

	sender := message.NormalizeAddress(m.From)
	for _, vip := range r.VIPContacts {
		vip = strings.ToLower(strings.TrimSpace(vip))
		if vip != "" && strings.Contains(sender, vip) {
			s.VIPSender = true
			break
		}
	}

	subject := strings.ToLower(m.Subject)
	body := strings.ToLower(m.Body)

	urgency := r.UrgencyKeywords
	if len(urgency) == 0 {
		urgency = defaultUrgencyKeywords
	}
	for _, kw := range urgency {
		if kw != "" && strings.Contains(subject, strings.ToLower(kw)) {
			s.SubjectUrgency = true
			break
		}
	}

	for _, kw := range r.CustomKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if strings.Contains(subject, kw) {
			s.SubjectKeyword = true
		}
		if strings.Contains(body, kw) {
			s.BodyKeyword = true
		}
		if s.SubjectKeyword {
			break
		}
	}

	if user := strings.ToLower(strings.TrimSpace(r.UserAddress)); user != "" {
		for _, to := range m.To {
			if strings.Contains(strings.ToLower(to), user) {
				s.DirectlyAddressed = true
				break
			}
		}
	}

	s.HasActionItems = len(m.ActionItems) > 0

	s.Classification = strings.ToLower(strings.TrimSpace(m.Classification))
	s.Intent = strings.ToLower(strings.TrimSpace(m.Intent))
	s.Sentiment = strings.ToLower(strings.TrimSpace(m.Sentiment))

	return s
}
