// Package artifact persists and validates the pipeline's intermediate and
// final artifacts. Formats are stable on purpose: resumed runs and outside
// tooling both read them.
//
//	transcript.txt         plain UTF-8 transcript
//	cases.json             {"cases":[{case_index,text,start_unit,end_unit}...]}
//	pipeline_output.json   [{case_index,text,summary}...]
//	pipeline_output.csv    same rows, csv
//	pipeline_output.xlsx   same rows, xlsx
//
// Runs with classification or summary polishing enabled carry extra
// columns (summary_clean, category, risk_score, flags) in every format.
package artifact

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/isonova/speech-to-cases/internal/types"
)

var (
	// ErrMissing: the artifact file does not exist.
	ErrMissing = errors.New("artifact missing")
	// ErrSchema: the artifact exists but fails validation.
	ErrSchema = errors.New("artifact schema invalid")
)

// Store manages the artifacts of one pipeline run inside Dir.
type Store struct {
	Dir string
}

func NewStore(dir string) *Store { return &Store{Dir: dir} }

// DirFor derives the default artifact directory for an audio file:
// a sibling "<basename>.cases" directory.
func DirFor(audioPath string) string {
	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	return filepath.Join(filepath.Dir(audioPath), base+".cases")
}

func (s *Store) TranscriptPath() string { return filepath.Join(s.Dir, "transcript.txt") }
func (s *Store) CasesPath() string      { return filepath.Join(s.Dir, "cases.json") }
func (s *Store) OutputJSONPath() string { return filepath.Join(s.Dir, "pipeline_output.json") }
func (s *Store) OutputCSVPath() string  { return filepath.Join(s.Dir, "pipeline_output.csv") }
func (s *Store) OutputXLSXPath() string { return filepath.Join(s.Dir, "pipeline_output.xlsx") }

func (s *Store) ensureDir() error {
	return os.MkdirAll(s.Dir, 0o755)
}

// writeAtomic writes via temp file + rename so a crash never leaves a torn
// artifact that would later validate.
func (s *Store) writeAtomic(path string, data []byte) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}
	tmp, err := os.CreateTemp(s.Dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("temp artifact: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

// SaveTranscript persists the transcript text. Utterance timing is not
// persisted; a resumed segmentation falls back to sentence splitting.
func (s *Store) SaveTranscript(tr types.Transcript) error {
	return s.writeAtomic(s.TranscriptPath(), []byte(tr.Text))
}

func (s *Store) LoadTranscript() (types.Transcript, error) {
	data, err := os.ReadFile(s.TranscriptPath())
	if err != nil {
		if os.IsNotExist(err) {
			return types.Transcript{}, fmt.Errorf("%w: %s", ErrMissing, s.TranscriptPath())
		}
		return types.Transcript{}, fmt.Errorf("read transcript: %w", err)
	}
	return types.Transcript{Text: strings.TrimSpace(string(data))}, nil
}

type casesFile struct {
	Cases []types.Case `json:"cases"`
}

func (s *Store) SaveCases(cases []types.Case) error {
	if err := validateCases(cases); err != nil {
		return err
	}
	data, err := json.MarshalIndent(casesFile{Cases: cases}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cases: %w", err)
	}
	return s.writeAtomic(s.CasesPath(), data)
}

func (s *Store) LoadCases() ([]types.Case, error) {
	return LoadCasesFile(s.CasesPath())
}

// LoadCasesFile reads and validates a case artifact at an explicit path,
// which need not be named cases.json.
func LoadCasesFile(path string) ([]types.Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return nil, fmt.Errorf("read cases: %w", err)
	}
	var cf casesFile
	if err := json.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	if err := validateCases(cf.Cases); err != nil {
		return nil, err
	}
	return cf.Cases, nil
}

// validateCases enforces the case invariants: zero-based, gapless,
// ascending indices and non-empty text.
func validateCases(cases []types.Case) error {
	for i, c := range cases {
		if c.CaseIndex != i {
			return fmt.Errorf("%w: case_index %d at position %d", ErrSchema, c.CaseIndex, i)
		}
		if strings.TrimSpace(c.Text) == "" {
			return fmt.Errorf("%w: empty text at case %d", ErrSchema, i)
		}
	}
	return nil
}

// SaveOutput writes the combined pipeline output in all three formats.
// Only called after a fully successful run.
func (s *Store) SaveOutput(records []types.CaseRecord) error {
	if records == nil {
		records = []types.CaseRecord{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	if err := s.writeAtomic(s.OutputJSONPath(), data); err != nil {
		return err
	}
	if err := s.writeCSV(records); err != nil {
		return err
	}
	return s.writeXLSX(records)
}

func (s *Store) LoadOutput() ([]types.CaseRecord, error) {
	data, err := os.ReadFile(s.OutputJSONPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrMissing, s.OutputJSONPath())
		}
		return nil, fmt.Errorf("read output: %w", err)
	}
	var records []types.CaseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSchema, err)
	}
	return records, nil
}

// HasOutput reports whether a completed run's combined output exists.
func (s *Store) HasOutput() bool {
	_, err := os.Stat(s.OutputJSONPath())
	return err == nil
}

// outputColumns is the tabular column set for a record batch. The base
// columns are fixed; summary_clean and the triage columns appear only when
// some record carries them, so plain runs keep the plain header.
func outputColumns(records []types.CaseRecord) []string {
	cols := []string{"case_index", "text", "summary"}
	hasClean, hasTriage := false, false
	for _, r := range records {
		hasClean = hasClean || r.SummaryClean != ""
		hasTriage = hasTriage || r.Triage != nil
	}
	if hasClean {
		cols = append(cols, "summary_clean")
	}
	if hasTriage {
		cols = append(cols, "category", "risk_score", "flags")
	}
	return cols
}

func columnValue(r types.CaseRecord, col string) string {
	switch col {
	case "case_index":
		return strconv.Itoa(r.CaseIndex)
	case "text":
		return r.Text
	case "summary":
		return r.Summary
	case "summary_clean":
		return r.SummaryClean
	case "category":
		if r.Triage != nil {
			return r.Triage.Category
		}
	case "risk_score":
		if r.Triage != nil {
			return strconv.Itoa(r.Triage.RiskScore)
		}
	case "flags":
		if r.Triage != nil {
			// Map keys marshal sorted, so the cell is deterministic.
			b, _ := json.Marshal(r.Triage.Flags)
			return string(b)
		}
	}
	return ""
}

func (s *Store) writeCSV(records []types.CaseRecord) error {
	cols := outputColumns(records)
	var b strings.Builder
	w := csv.NewWriter(&b)
	if err := w.Write(cols); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	for _, r := range records {
		row := make([]string, 0, len(cols))
		for _, col := range cols {
			row = append(row, columnValue(r, col))
		}
		if err := w.Write(row); err != nil {
			return fmt.Errorf("write csv: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return s.writeAtomic(s.OutputCSVPath(), []byte(b.String()))
}

func (s *Store) writeXLSX(records []types.CaseRecord) error {
	cols := outputColumns(records)
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)
	for col, h := range cols {
		cell, _ := excelize.CoordinatesToCellName(col+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return fmt.Errorf("write xlsx: %w", err)
		}
	}
	for row, r := range records {
		for col, name := range cols {
			var v interface{} = columnValue(r, name)
			switch {
			case name == "case_index":
				v = r.CaseIndex
			case name == "risk_score" && r.Triage != nil:
				v = r.Triage.RiskScore
			}
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return fmt.Errorf("write xlsx: %w", err)
			}
		}
	}
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("artifact dir: %w", err)
	}
	if err := f.SaveAs(s.OutputXLSXPath()); err != nil {
		return fmt.Errorf("write xlsx: %w", err)
	}
	return nil
}
