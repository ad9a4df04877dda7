package types

// Utterance is a single timestamped span of speech as returned by the
// speech service. Start/End are seconds from the beginning of the recording.
type Utterance struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the full text of one call. Utterances is optional: some
// speech backends only return the flat text blob.
type Transcript struct {
	Text       string      `json:"text"`
	Utterances []Utterance `json:"utterances,omitempty"`
}

// Empty reports whether the transcript carries no speech at all.
// Silent audio legitimately produces an empty transcript.
func (t Transcript) Empty() bool {
	return t.Text == "" && len(t.Utterances) == 0
}

// Case is one topical segment of a transcript. CaseIndex values are
// zero-based, sequential and gapless; cases never overlap and together
// cover the whole transcript in order. StartUnit/EndUnit are inclusive
// indices into the segmentation unit sequence the case was cut from.
type Case struct {
	CaseIndex int    `json:"case_index"`
	Text      string `json:"text"`
	StartUnit int    `json:"start_unit"`
	EndUnit   int    `json:"end_unit"`
}

// Triage is the optional keyword-heuristic classification of one case:
// a coarse category, per-signal boolean flags and a 0-100 risk score.
type Triage struct {
	Category  string          `json:"category"`
	Flags     map[string]bool `json:"flags"`
	RiskScore int             `json:"risk_score"`
}

// Summary is the generated summary for the case with the same CaseIndex.
// SummaryClean and Triage are present only when the corresponding
// summarization options are enabled.
type Summary struct {
	CaseIndex    int     `json:"case_index"`
	Summary      string  `json:"summary"`
	SummaryClean string  `json:"summary_clean,omitempty"`
	Triage       *Triage `json:"triage,omitempty"`
}

// CaseRecord is one row of the combined pipeline output: the join of a
// Case and its Summary by CaseIndex. This is the only artifact consumers
// read.
type CaseRecord struct {
	CaseIndex    int     `json:"case_index"`
	Text         string  `json:"text"`
	Summary      string  `json:"summary"`
	SummaryClean string  `json:"summary_clean,omitempty"`
	Triage       *Triage `json:"triage,omitempty"`
}

// JoinCases pairs cases with their summaries by position. The pipeline
// guarantees both slices are the same length and ordered by CaseIndex
// before calling.
func JoinCases(cases []Case, summaries []Summary) []CaseRecord {
	out := make([]CaseRecord, 0, len(cases))
	for i, c := range cases {
		rec := CaseRecord{CaseIndex: c.CaseIndex, Text: c.Text}
		if i < len(summaries) {
			rec.Summary = summaries[i].Summary
			rec.SummaryClean = summaries[i].SummaryClean
			rec.Triage = summaries[i].Triage
		}
		out = append(out, rec)
	}
	return out
}
