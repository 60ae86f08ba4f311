package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() {
	f.flushes++
}

func TestFrameWriter(t *testing.T) {
	rec := &flushRecorder{}
	fw := NewFrameWriter(rec)

	require.NoError(t, fw.WriteFrame([]byte(`[{"op":"add","path":"/A","value":1}]`)))
	require.NoError(t, fw.WriteFrame([]byte(`[]`)))
	require.ErrorIs(t, fw.WriteFrame([]byte("a\nb")), ErrInvalidFrame)

	require.Equal(t, "[{\"op\":\"add\",\"path\":\"/A\",\"value\":1}]\n[]\n", rec.String())
	require.Equal(t, 2, rec.flushes)
}

func TestFrameReader(t *testing.T) {
	t.Run("splits on newlines regardless of chunking", func(t *testing.T) {
		r := io.MultiReader(
			strings.NewReader(`[{"op":"add",`),
			strings.NewReader("\"path\":\"/A\",\"value\":1}]\n\n[]\r\n{not json\n"),
			strings.NewReader(`[]`),
		)
		fr := NewFrameReader(r, 0)

		var frames []string
		for {
			frame, err := fr.ReadFrame()
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			frames = append(frames, string(frame))
		}
		require.Equal(t, []string{
			`[{"op":"add","path":"/A","value":1}]`,
			`[]`,
			`{not json`,
			`[]`,
		}, frames)
	})

	t.Run("oversized frames are skipped", func(t *testing.T) {
		fr := NewFrameReader(strings.NewReader(strings.Repeat("x", 64)+"\n[]\n"), 16)

		_, err := fr.ReadFrame()
		require.ErrorIs(t, err, ErrMessageTooLarge)

		frame, err := fr.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, "[]", string(frame))
	})
}

func TestBatch(t *testing.T) {
	_, ok := Batch{}.Last()
	require.False(t, ok)

	last, ok := Batch{map[string]any{"x": 1.0}, map[string]any{"x": 2.0}}.Last()
	require.True(t, ok)
	require.Equal(t, map[string]any{"x": 2.0}, last)
}

func TestGenerateClientID(t *testing.T) {
	a, b := GenerateClientID(), GenerateClientID()
	require.NotEqual(t, a, b)
	require.Len(t, string(a), 36)
}
