package stream

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAccumulator_VerbatimAppend(t *testing.T) {
	var a Accumulator
	a.Append("foo")
	a.Append("bar")
	require.Equal(t, "foobar", a.Text(), "no separator may be inserted between payloads")
}

func TestAccumulator_EmptyPayloadIsNewline(t *testing.T) {
	var a Accumulator
	a.Append("line one")
	a.Append("")
	a.Append("line two")
	require.Equal(t, "line one\nline two", a.Text())
}

func TestAccumulator_RepeatedEmptyPayloadsCollapse(t *testing.T) {
	var a Accumulator
	a.Append("")
	a.Append("")
	require.Equal(t, "\n", a.Text(), "duplicate blank events must not stack newlines")

	a.Append("x")
	a.Append("")
	a.Append("")
	a.Append("")
	require.Equal(t, "\nx\n", a.Text())
}

func TestAccumulator_EmptyAfterTrailingNewlineIsNoop(t *testing.T) {
	var a Accumulator
	a.Append("ends with newline\n")
	a.Append("")
	require.Equal(t, "ends with newline\n", a.Text())
}

func TestAccumulator_SnapshotPerAppend(t *testing.T) {
	var a Accumulator
	var snapshots []string
	for _, p := range []string{"Stress ", "affects ", "", "memory."} {
		a.Append(p)
		snapshots = append(snapshots, a.Text())
	}
	require.Equal(t, []string{
		"Stress ",
		"Stress affects ",
		"Stress affects \n",
		"Stress affects \nmemory.",
	}, snapshots)
}
