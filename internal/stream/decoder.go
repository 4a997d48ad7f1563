// Package stream decodes text/event-stream response bodies into payload
// tokens and assembles them into the growing answer text.
package stream

import (
	"io"
	"strings"
)

// Sentinel is the payload value that marks logical end of stream.
const Sentinel = "[DONE]"

const (
	dataPrefix = "data:"
	readSize   = 4096
)

// Decoder turns a raw event-stream body into a sequence of payload strings.
// Transport chunk sizes carry no meaning: an event split across reads is held
// in the carry-over buffer until its closing blank line arrives, so a payload
// is never emitted truncated. A Decoder is single-use; create one per
// streaming session.
type Decoder struct {
	r       io.Reader
	readBuf []byte
	carry   string
	pending []string
	done    bool
}

// NewDecoder wraps the response body r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r, readBuf: make([]byte, readSize)}
}

// Next returns the next decoded payload. It returns io.EOF once the sentinel
// has been seen or the underlying stream is exhausted; any other error is a
// transport failure from the underlying reader. Malformed stream content is
// never an error.
func (d *Decoder) Next() (string, error) {
	for {
		if len(d.pending) > 0 {
			p := d.pending[0]
			d.pending = d.pending[1:]
			return p, nil
		}
		if d.done {
			return "", io.EOF
		}

		n, err := d.r.Read(d.readBuf)
		if n > 0 {
			d.carry += string(d.readBuf[:n])
			d.drain()
		}
		if err != nil {
			if err == io.EOF {
				d.flushTail()
				d.done = true
				continue
			}
			d.done = true
			return "", err
		}
	}
}

// drain splits complete events off the carry buffer and queues their
// payloads. Stops at the sentinel: later frames are discarded.
func (d *Decoder) drain() {
	d.carry = strings.ReplaceAll(d.carry, "\r\n", "\n")
	for {
		i := strings.Index(d.carry, "\n\n")
		if i < 0 {
			return
		}
		event := d.carry[:i]
		d.carry = d.carry[i+2:]
		if d.queueEvent(event) {
			d.done = true
			d.carry = ""
			return
		}
	}
}

// flushTail treats whatever is left in the carry buffer at stream end as a
// final, unterminated event.
func (d *Decoder) flushTail() {
	tail := strings.TrimSuffix(strings.ReplaceAll(d.carry, "\r\n", "\n"), "\n")
	d.carry = ""
	if tail != "" {
		d.queueEvent(tail)
	}
}

// queueEvent parses one complete event and appends its payload to the queue.
// It reports whether the event carried the end-of-stream sentinel.
func (d *Decoder) queueEvent(event string) bool {
	var payload string
	seen := false
	for _, line := range strings.Split(event, "\n") {
		switch {
		case strings.HasPrefix(line, dataPrefix):
			data := strings.TrimPrefix(strings.TrimPrefix(line, dataPrefix), " ")
			if data == Sentinel {
				return true
			}
			if seen {
				payload += "\n" + data
			} else {
				payload = data
				seen = true
			}
		case strings.HasPrefix(line, ":"):
			// comment line, ignored
		default:
			// No recognized prefix: keep the content as a trailing
			// continuation of the current payload instead of dropping it.
			if seen {
				payload += "\n" + line
			} else if line != "" {
				payload = line
				seen = true
			}
		}
	}
	if seen {
		d.pending = append(d.pending, payload)
	}
	return false
}
