package buildlog

import (
	"io"
	"iter"
	"strings"
)

// Outcome is what a drained build log amounts to
type Outcome struct {
	ImageID  string   // last image ID announced, empty when none
	Errors   []string // in-band engine errors, in order
	Relayed  int      // stream entries written to the output
	RelayErr error    // first write failure; relaying stops, draining does not
}

// Drain consumes entries in order. Non-blank stream text is written to out
// as soon as it arrives, one Write per entry. Every image ID overwrites the
// previous one. Engine errors are relayed prefixed with "ERROR: " and kept.
// The first error yielded by the sequence aborts the drain.
func Drain(entries iter.Seq2[Entry, error], out io.Writer) (Outcome, error) {
	var outcome Outcome

	relay := func(text string) {
		if outcome.RelayErr != nil || out == nil {
			return
		}
		if _, err := io.WriteString(out, text); err != nil {
			outcome.RelayErr = err
			return
		}
		outcome.Relayed++
	}

	for entry, err := range entries {
		if err != nil {
			return outcome, err
		}

		switch entry.Kind {
		case KindStream:
			if strings.TrimSpace(entry.Text) != "" {
				relay(entry.Text)
			}
		case KindImageID:
			outcome.ImageID = entry.ImageID
		case KindError:
			outcome.Errors = append(outcome.Errors, entry.Text)
			relay("ERROR: " + strings.TrimRight(entry.Text, "\n") + "\n")
		}
	}

	return outcome, nil
}

// LastError returns the last in-band engine error, or ""
func (o Outcome) LastError() string {
	if len(o.Errors) == 0 {
		return ""
	}
	return o.Errors[len(o.Errors)-1]
}
