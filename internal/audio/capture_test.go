package audio

import (
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCaptureOnPCMChunkingAndStopFlushesResidual(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, CaptureOptions{KeepRaw: true})

	input := make([]byte, chunkSizeBytes+111)
	for i := range input {
		input[i] = byte(i % 251)
	}

	n, err := capture.onPCM(input)
	require.NoError(t, err)
	require.Equal(t, len(input), n)
	require.Equal(t, int64(len(input)), capture.BytesCaptured())
	require.Equal(t, input, capture.RawPCM())

	first := <-capture.Chunks()
	require.Equal(t, input[:chunkSizeBytes], first)

	require.NoError(t, capture.Stop())
	require.NoError(t, capture.Stop())

	residual, ok := <-capture.Chunks()
	require.True(t, ok)
	require.Equal(t, input[chunkSizeBytes:], residual)

	_, ok = <-capture.Chunks()
	require.False(t, ok)
}

func TestCaptureWithoutKeepRawRetainsNothing(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, CaptureOptions{})

	_, err := capture.onPCM(make([]byte, chunkSizeBytes))
	require.NoError(t, err)
	require.Empty(t, capture.RawPCM())
	require.Equal(t, int64(chunkSizeBytes), capture.BytesCaptured())
}

func TestCaptureOnPCMReturnsEOFAfterStop(t *testing.T) {
	capture := newCapture(Device{ID: "mic-1"}, CaptureOptions{})
	capture.Close()

	n, err := capture.onPCM([]byte{1, 2, 3})
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
	require.Zero(t, capture.BytesCaptured())
	require.Equal(t, "mic-1", capture.Device().ID)
}

func TestCaptureOnPCMIgnoresEmptyBuffer(t *testing.T) {
	capture := newCapture(Device{}, CaptureOptions{})
	n, err := capture.onPCM(nil)
	require.NoError(t, err)
	require.Zero(t, n)
}
