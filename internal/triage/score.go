package triage

import "github.com/linnemanlabs/mailwatch/internal/message"

// Scoring weights. These are deliberately plain constants: the score must be
// reproducible by hand from a message's signals, and tests assert exact
// totals against them.
const (
	WeightClassUrgentAction = 40
	WeightClassWork         = 10
	WeightClassPersonal     = 5
	WeightClassUnwanted     = -10 // promotional or spam

	WeightVIPSender            = 40
	WeightVIPNegativeSentiment = 10

	WeightIntentRequestAction = 15
	WeightIntentProblemReport = 10
	WeightIntentMeeting       = 5

	WeightKeywordSubject = 15
	WeightKeywordBody    = 10

	WeightDirectlyAddressed = 5
	WeightActionItems       = 5
)

// Factor is one contributing term of a score, kept for explainability.
type Factor struct {
	Name   string `json:"name"`
	Points int    `json:"points"`
}

// ScoreResult is the computed priority of a single message: the floored
// total plus the factor breakdown that produced it.
type ScoreResult struct {
	Score   int      `json:"score"`
	Factors []Factor `json:"factors,omitempty"`
}

// Score combines extracted signals into a priority score. Pure function:
// same signals, same result. The total is an explicit weighted sum floored
// at zero after all terms are applied.
func Score(s Signals) ScoreResult {
	var factors []Factor
	add := func(name string, points int) {
		factors = append(factors, Factor{Name: name, Points: points})
	}

	switch s.Classification {
	case message.ClassUrgentAction:
		add("classification:urgent_action", WeightClassUrgentAction)
	case message.ClassWork:
		add("classification:work", WeightClassWork)
	case message.ClassPersonal:
		add("classification:personal", WeightClassPersonal)
	case message.ClassPromotional, message.ClassSpam:
		add("classification:unwanted", WeightClassUnwanted)
	}

	if s.VIPSender {
		add("vip_sender", WeightVIPSender)
		if s.Sentiment == message.SentimentNegative {
			// an important sender who is unhappy outranks one who is not
			add("vip_negative_sentiment", WeightVIPNegativeSentiment)
		}
	}

	switch s.Intent {
	case message.IntentRequestAction:
		add("intent:request_for_action", WeightIntentRequestAction)
	case message.IntentProblemReport:
		add("intent:problem_report", WeightIntentProblemReport)
	case message.IntentMeeting:
		add("intent:meeting", WeightIntentMeeting)
	}

	// subject match wins; body-only is the weaker fallback, never additive
	if s.SubjectKeyword {
		add("keyword:subject", WeightKeywordSubject)
	} else if s.BodyKeyword {
		add("keyword:body", WeightKeywordBody)
	}

	if s.DirectlyAddressed {
		add("directly_addressed", WeightDirectlyAddressed)
	}
	if s.HasActionItems {
		add("action_items", WeightActionItems)
	}

	total := 0
	for _, f := range factors {
		total += f.Points
	}
	if total < 0 {
		total = 0
	}

	return ScoreResult{Score: total, Factors: factors}
}
