package stream

import "strings"

// Accumulator merges decoded payloads, in arrival order, into the answer
// text. Non-empty payloads are appended verbatim: the splitter must not
// invent or remove characters, so no word-boundary heuristics are applied.
// An empty payload stands for an explicit newline and is collapsed when the
// buffer already ends with one, so repeated blank events cannot stack blank
// lines.
type Accumulator struct {
	b    strings.Builder
	last byte
}

// Append applies one payload.
func (a *Accumulator) Append(payload string) {
	if payload == "" {
		if a.last != '\n' {
			a.b.WriteByte('\n')
			a.last = '\n'
		}
		return
	}
	a.b.WriteString(payload)
	a.last = payload[len(payload)-1]
}

// Text returns a snapshot of the accumulated answer.
func (a *Accumulator) Text() string {
	return a.b.String()
}
