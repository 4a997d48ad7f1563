package stream

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// chunkedReader yields the input in fixed-size chunks so tests can exercise
// arbitrary transport boundaries.
type chunkedReader struct {
	rest string
	size int
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	if c.rest == "" {
		return 0, io.EOF
	}
	n := c.size
	if n > len(c.rest) {
		n = len(c.rest)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, c.rest[:n])
	c.rest = c.rest[n:]
	return n, nil
}

func decodeAll(t *testing.T, r io.Reader) []string {
	t.Helper()
	d := NewDecoder(r)
	var payloads []string
	for {
		p, err := d.Next()
		if err == io.EOF {
			return payloads
		}
		require.NoError(t, err)
		payloads = append(payloads, p)
	}
}

// ---------------------------------------------------------------------------
// basic decoding
// ---------------------------------------------------------------------------

func TestDecoder_SimpleFrames(t *testing.T) {
	in := "data: Hello\n\ndata:  world\n\ndata: [DONE]\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"Hello", " world"}, got)
}

func TestDecoder_EmptyPayloadFrame(t *testing.T) {
	in := "data: a\n\ndata: \n\ndata: b\n\ndata: [DONE]\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"a", "", "b"}, got)
}

func TestDecoder_BareDataPrefix(t *testing.T) {
	in := "data:token\n\ndata:[DONE]\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"token"}, got)
}

func TestDecoder_CommentLinesIgnored(t *testing.T) {
	in := ": keep-alive\n\ndata: x\n: interleaved\n\ndata: [DONE]\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"x"}, got)
}

func TestDecoder_ContinuationLineKept(t *testing.T) {
	// Content without a recognized prefix is absorbed as trailing content of
	// the payload, never dropped.
	in := "data: first\nsecond half\n\ndata: [DONE]\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"first\nsecond half"}, got)
}

func TestDecoder_CRLFBoundaries(t *testing.T) {
	in := "data: a\r\n\r\ndata: [DONE]\r\n\r\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"a"}, got)
}

func TestDecoder_UnterminatedTailFlushedAtEOF(t *testing.T) {
	in := "data: a\n\ndata: trailing"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"a", "trailing"}, got)
}

// ---------------------------------------------------------------------------
// chunk-boundary invariance
// ---------------------------------------------------------------------------

func TestDecoder_ChunkBoundaryInvariance(t *testing.T) {
	in := "data: hel" + "lo\n\ndata: \n\ndata: wor\nld\n\n: ping\n\ndata: [DONE]\n\n"
	want := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"hello", "", "wor\nld"}, want)

	for size := 1; size <= len(in); size++ {
		t.Run(fmt.Sprintf("chunk=%d", size), func(t *testing.T) {
			got := decodeAll(t, &chunkedReader{rest: in, size: size})
			require.Equal(t, want, got)
		})
	}
}

func TestDecoder_SplitSentinelAcrossReads(t *testing.T) {
	r := io.MultiReader(
		strings.NewReader("data: hel"),
		strings.NewReader("lo\n\ndata: [DO"),
		strings.NewReader("NE]\n\n"),
	)
	got := decodeAll(t, r)
	require.Equal(t, []string{"hello"}, got)
}

// ---------------------------------------------------------------------------
// sentinel termination
// ---------------------------------------------------------------------------

func TestDecoder_FramesAfterSentinelIgnored(t *testing.T) {
	in := "data: a\n\ndata: [DONE]\n\ndata: ghost\n\n"
	got := decodeAll(t, strings.NewReader(in))
	require.Equal(t, []string{"a"}, got)
}

func TestDecoder_EOFAfterSentinelIsSticky(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: [DONE]\n\n"))
	_, err := d.Next()
	require.Equal(t, io.EOF, err)
	_, err = d.Next()
	require.Equal(t, io.EOF, err)
}

// ---------------------------------------------------------------------------
// transport failures
// ---------------------------------------------------------------------------

type failingReader struct {
	data string
	err  error
	read bool
}

func (f *failingReader) Read(p []byte) (int, error) {
	if !f.read {
		f.read = true
		return copy(p, f.data), nil
	}
	return 0, f.err
}

func TestDecoder_TransportErrorPropagated(t *testing.T) {
	wantErr := errors.New("connection reset")
	d := NewDecoder(&failingReader{data: "data: partial\n\n", err: wantErr})

	p, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, "partial", p)

	_, err = d.Next()
	require.ErrorIs(t, err, wantErr)

	// once failed, the decoder stays finished
	_, err = d.Next()
	require.Equal(t, io.EOF, err)
}
