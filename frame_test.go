package dubbo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFrameHeaderRoundTrip(t *testing.T) {
	body := []byte("hello dubbo")
	frame := writeFrame(42, body)

	require.Len(t, frame, HeaderLength+len(body))
	assert.Equal(t, byte(0xda), frame[0])
	assert.Equal(t, byte(0xbb), frame[1])

	hdr, err := parseFrameHeader(frame[:HeaderLength])
	require.NoError(t, err)
	assert.EqualValues(t, 42, hdr.RequestID)
	assert.EqualValues(t, len(body), hdr.DataLength)
	assert.Equal(t, frame[HeaderLength:], body)
}

func TestParseFrameHeaderRejectsBadMagic(t *testing.T) {
	bad := make([]byte, HeaderLength)
	copy(bad, []byte{0x00, 0x00})
	_, err := parseFrameHeader(bad)
	require.Error(t, err)
}

func TestWriteFrameDistinctRequestIDs(t *testing.T) {
	a := writeFrame(1, []byte("x"))
	b := writeFrame(2, []byte("x"))
	assert.NotEqual(t, a, b)
}
