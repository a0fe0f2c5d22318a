package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScanSSECollectsDataLines(t *testing.T) {
	body := strings.Join([]string{
		": comment line",
		"event: message",
		"data: first",
		"",
		"data:second",
		"",
		"retry: 3000",
		"data:  padded  ",
		"",
	}, "\n")

	var collected []string
	err := scanSSE(strings.NewReader(body), func(data string) bool {
		collected = append(collected, data)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "second", "padded"}, collected)
}

func TestScanSSEStopsEarly(t *testing.T) {
	body := "data: one\n\ndata: [DONE]\n\ndata: never\n\n"

	var collected []string
	err := scanSSE(strings.NewReader(body), func(data string) bool {
		if data == sseDoneSentinel {
			return false
		}
		collected = append(collected, data)
		return true
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"one"}, collected)
}

func TestScanSSELargeChunk(t *testing.T) {
	// Provider chunks can exceed bufio's default 64KB token limit.
	payload := strings.Repeat("x", 200*1024)
	body := "data: " + payload + "\n\n"

	var collected []string
	err := scanSSE(strings.NewReader(body), func(data string) bool {
		collected = append(collected, data)
		return true
	})
	require.NoError(t, err)
	require.Len(t, collected, 1)
	assert.Equal(t, payload, collected[0])
}
