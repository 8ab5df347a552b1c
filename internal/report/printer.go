package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Printer writes results to the benchmark's output stream.
type Printer struct {
	w       io.Writer
	format  string
	session string
}

func NewPrinter(w io.Writer, format, session string) *Printer {
	if format != FormatJSON {
		format = FormatText
	}
	return &Printer{w: w, format: format, session: session}
}

type jsonLine struct {
	Session   string  `json:"session,omitempty"`
	Harness   string  `json:"harness"`
	Metric    string  `json:"metric"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// Print writes results in order, one per line.
func (p *Printer) Print(harness string, results []Result) error {
	if p.format == FormatJSON {
		enc := json.NewEncoder(p.w)
		now := time.Now().UTC().Format(time.RFC3339Nano)
		for _, r := range results {
			if err := enc.Encode(jsonLine{
				Session: p.session, Harness: harness, Metric: r.Name,
				Value: r.Value, Unit: r.Unit, Timestamp: now,
			}); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range results {
		if _, err := fmt.Fprintf(p.w, "%s: %s %s\n", r.Name, strconv.FormatFloat(r.Value, 'g', -1, 64), r.Unit); err != nil {
			return err
		}
	}
	return nil
}

const (
	VerdictPassed = "TEST PASSED!"
	VerdictFailed = "TEST FAILED!"
)

// Status writes the final verdict. JSON output adds a status record before
// the plain verdict line, which ends the output in every format.
func (p *Printer) Status(err error) {
	if p.format == FormatJSON {
		line := map[string]any{"session": p.session, "passed": err == nil}
		if err != nil {
			line["error"] = err.Error()
		}
		_ = json.NewEncoder(p.w).Encode(line)
	} else if err != nil {
		fmt.Fprintln(p.w, err.Error())
	}
	if err != nil {
		fmt.Fprintln(p.w, VerdictFailed)
		return
	}
	fmt.Fprintln(p.w, VerdictPassed)
}
