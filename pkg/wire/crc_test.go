package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFCS(t *testing.T) {
	// CRC-16/X-25 check value
	require.Equal(t, uint16(0x906E), FCS([]byte("123456789")))
}

func TestEncodeFrame(t *testing.T) {
	data := []byte{0x00, 0xF1, 0x11}
	raw := EncodeFrame(data)
	require.Len(t, raw, len(data)+2)
	require.Equal(t, data, raw[:len(data)])

	fcs := FCS(data)
	require.Equal(t, byte(fcs), raw[len(data)], "low byte first")
	require.Equal(t, byte(fcs>>8), raw[len(data)+1])
}

func TestRunningFCSMatchesChecksum(t *testing.T) {
	data := []byte{0x00, 0x00, 0x11, 0xDE, 0xAD, 0xBE, 0xEF}
	crc := fcsInit()
	for _, b := range data {
		crc = fcsUpdate(crc, b)
	}
	require.Equal(t, FCS(data), fcsValue(crc))
}
