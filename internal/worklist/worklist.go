// Package worklist loads a spreadsheet of recordings to process in batch.
// Column positions are auto-detected from headers since export formats vary
// between telephony vendors.
package worklist

import (
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Entry is one recording to run through the pipeline.
type Entry struct {
	CallID    string
	AudioPath string
}

// Load reads the first sheet of an xlsx worklist. Rows without a usable
// audio reference are skipped quietly.
func Load(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open worklist: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(rows) <= 1 {
		return nil, fmt.Errorf("no data rows")
	}

	audioIdx := -1
	callIDIdx := -1
	for i, h := range rows[0] {
		l := strings.ToLower(strings.TrimSpace(h))
		switch {
		case strings.Contains(l, "audio") || strings.Contains(l, "record") || strings.Contains(l, "path") || strings.Contains(l, "url"):
			if audioIdx == -1 {
				audioIdx = i
			}
		case strings.Contains(l, "call id") || strings.Contains(l, "callid") || strings.Contains(l, "id"):
			if callIDIdx == -1 {
				callIDIdx = i
			}
		}
	}
	if audioIdx == -1 {
		return nil, fmt.Errorf("no audio column in header %v", rows[0])
	}

	var out []Entry
	for i, r := range rows {
		if i == 0 {
			continue
		}
		e := Entry{}
		if callIDIdx >= 0 && callIDIdx < len(r) {
			e.CallID = strings.TrimSpace(r[callIDIdx])
		}
		if audioIdx < len(r) {
			e.AudioPath = strings.TrimSpace(r[audioIdx])
		}
		if e.AudioPath == "" {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}
