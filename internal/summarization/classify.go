package summarization

import (
	"regexp"
	"strings"

	"github.com/isonova/speech-to-cases/internal/types"
)

// Keyword tables for case triage. Categories are scored by hit count with
// ties broken by table order; flags are independent boolean signals that
// feed the risk score.
var categoryRules = []struct {
	name     string
	keywords []string
}{
	{"Remote Access Attempt", []string{"anydesk", "teamviewer", "remote", "access code", "access id", "give me the numbers"}},
	{"App Install / Payment App", []string{"install", "download", "app", "cash app", "payment app", "qr code", "scan qr"}},
	{"Verification / Identity", []string{"verify", "verification", "manager", "confirm your", "identity", "id"}},
	{"Payment / Withdrawal Request", []string{"withdraw", "withdrawal", "transfer", "bank", "refund"}},
	{"Support / Legit Help", []string{"support", "help", "customer service", "finance department"}},
}

var numericCodeRe = regexp.MustCompile(`\b\d{3,}\b`)

var flagRules = []struct {
	name     string
	keywords []string
	pattern  *regexp.Regexp
}{
	{name: "remote_access", keywords: []string{"anydesk", "teamviewer", "remote", "give me the numbers", "access code", "control your"}},
	{name: "requests_codes", keywords: []string{"access code", "code", "pin"}, pattern: numericCodeRe},
	{name: "app_install", keywords: []string{"download", "install", "get the app"}},
	{name: "qr_scan", keywords: []string{"qr", "scan"}},
	{name: "payment_request", keywords: []string{"withdraw", "transfer", "send money", "refund"}},
	{name: "urgency", keywords: []string{"now", "immediately", "quick"}},
}

var flagWeights = map[string]int{
	"remote_access":   35,
	"app_install":     20,
	"requests_codes":  20,
	"payment_request": 15,
	"qr_scan":         10,
	"urgency":         8,
}

// Classify runs the keyword heuristics over cleaned case text. The risk
// score is the sum of the matched flag weights, capped at 100; a
// remote-access flag combined with support talk scores extra (the classic
// tech-support scam shape). A text matching no category is "Other".
func Classify(text string) types.Triage {
	lower := strings.ToLower(text)

	flags := make(map[string]bool, len(flagRules))
	score := 0
	for _, rule := range flagRules {
		found := false
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				found = true
				break
			}
		}
		if !found && rule.pattern != nil {
			found = rule.pattern.MatchString(lower)
		}
		flags[rule.name] = found
		if found {
			score += flagWeights[rule.name]
		}
	}
	if flags["remote_access"] && strings.Contains(lower, "support") {
		score += 5
	}
	if score > 100 {
		score = 100
	}

	category := "Other"
	best := 0
	for _, rule := range categoryRules {
		hits := 0
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				hits++
			}
		}
		if hits > best {
			best = hits
			category = rule.name
		}
	}

	return types.Triage{Category: category, Flags: flags, RiskScore: score}
}

// triageFor classifies cleaned case text; empty text is its own category.
func triageFor(cleaned string) *types.Triage {
	if cleaned == "" {
		return &types.Triage{Category: "Empty", Flags: map[string]bool{}}
	}
	t := Classify(cleaned)
	return &t
}
