package summarization

import (
	"regexp"
	"strings"
)

// Intent rules map instruction-heavy case text onto a canonical one-line
// factual statement. First matching rule wins.
var intentRules = []struct {
	pattern *regexp.Regexp
	intent  string
}{
	{regexp.MustCompile(`\banydesk\b|\bany desk\b|\bteamviewer\b`), "Agent asks user to install a remote-access app (AnyDesk/TeamViewer) and provide the connection code."},
	{regexp.MustCompile(`\bdownload\b|\binstall\b|\bget the app\b`), "Agent instructs user to download/install a mobile app."},
	{regexp.MustCompile(`\bqr\b|\bscan\b|\bcamera\b`), "Agent instructs user to scan a QR code or use the camera."},
	{regexp.MustCompile(`\bwithdraw\b|\bwithdrawal\b|\btransfer\b|\bbank\b|\bmoney back\b|\brefund\b`), "Agent discusses returning/withdrawing funds or bank transfer steps."},
	{regexp.MustCompile(`\bmanager\b|\bverify\b|\bidentity\b|\bconfirm your\b`), "Agent requests verification or mentions account/manager details."},
	{regexp.MustCompile(`\bfull access\b|\bpermissions\b|\bcontrol your\b`), "Agent requests broad permissions / full access to device."},
	{regexp.MustCompile(`\bcode\b|\baccess code\b|\baccess id\b|\b\d{3,}\b`), "Agent requests numeric access codes or connection IDs."},
}

var (
	urlRe          = regexp.MustCompile(`(?i)https?://\S+|\bwww\.\S+`)
	punctSpaceRe   = regexp.MustCompile(`\s*([.,!?])\s*`)
	multiDotRe     = regexp.MustCompile(`\.{2,}`)
	dupSentenceRe  = regexp.MustCompile(`(\. ){2,}`)
	instructionRe  = regexp.MustCompile(`(?i)\b(click|open|install|download|scan|press|accept|start|give)\b`)
	trailingJunkRe = regexp.MustCompile(`[^A-Za-z0-9.,?! ]+$`)
)

// PolishSummary rewrites a raw model summary into a short factual
// statement: transcript banners, URLs and repeated phrases are stripped,
// and instruction-heavy text is replaced by its canonical intent sentence
// when one of the known patterns matches. An empty result falls back to a
// shortened form of the case text, so the clean summary is never blank for
// a non-empty case.
func PolishSummary(summary, caseText string) string {
	raw := summary
	if raw == "" {
		raw = caseText
	}
	cleaned := cleanSummaryText(raw)

	final := cleaned
	if intent := detectIntent(cleaned); intent != "" {
		if instructionRe.MatchString(cleaned) || len(strings.Fields(cleaned)) > 20 {
			final = intent
		}
	}
	final = dupSentenceRe.ReplaceAllString(final, ". ")
	final = normalizeSpace(final)

	if final == "" {
		final = shortenWords(cleanSummaryText(caseText), 30)
	}
	final = shortenWords(final, 25)
	return strings.TrimSpace(trailingJunkRe.ReplaceAllString(final, ""))
}

func cleanSummaryText(s string) string {
	t := bannerRe.ReplaceAllString(s, "")
	t = urlRe.ReplaceAllString(t, "")
	t = collapsePhrases(t)
	t = punctSpaceRe.ReplaceAllString(t, "$1 ")
	t = multiDotRe.ReplaceAllString(t, ".")
	return normalizeSpace(t)
}

func detectIntent(cleaned string) string {
	lower := strings.ToLower(cleaned)
	for _, rule := range intentRules {
		if rule.pattern.MatchString(lower) {
			return rule.intent
		}
	}
	return ""
}

// collapsePhrases folds immediate repetitions of short phrases (up to five
// words) down to one occurrence, longest phrase first, so "scan the code
// scan the code scan the code" becomes "scan the code".
func collapsePhrases(s string) string {
	words := strings.Fields(s)
	var out []string
	i := 0
	for i < len(words) {
		collapsed := false
		for n := 5; n >= 1; n-- {
			if i+2*n > len(words) || !phraseEqual(words[i:i+n], words[i+n:i+2*n]) {
				continue
			}
			j := i + n
			for j+n <= len(words) && phraseEqual(words[i:i+n], words[j:j+n]) {
				j += n
			}
			out = append(out, words[i:i+n]...)
			i = j
			collapsed = true
			break
		}
		if !collapsed {
			out = append(out, words[i])
			i++
		}
	}
	return strings.Join(out, " ")
}

func phraseEqual(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(a[i], b[i]) {
			return false
		}
	}
	return true
}

func shortenWords(s string, max int) string {
	words := strings.Fields(s)
	if len(words) <= max {
		return s
	}
	return strings.Join(words[:max], " ") + "."
}
