package wire

import "github.com/sigurn/crc16"

// The frame check sequence is CRC-16/X-25: poly 0x1021, init 0xFFFF,
// reflected input and output, xorout 0xFFFF. It is appended low byte
// first and covers address, control and info bytes.
var fcsTable = crc16.MakeTable(crc16.CRC16_X_25)

// FCS computes the frame check sequence over data.
func FCS(data []byte) uint16 {
	return crc16.Checksum(data, fcsTable)
}

// EncodeFrame returns data with the FCS appended, low byte first.
func EncodeFrame(data []byte) []byte {
	fcs := FCS(data)
	raw := make([]byte, len(data)+2)
	copy(raw, data)
	raw[len(data)] = byte(fcs)
	raw[len(data)+1] = byte(fcs >> 8)
	return raw
}

func fcsInit() uint16 {
	return crc16.Init(fcsTable)
}

func fcsUpdate(crc uint16, b byte) uint16 {
	return crc16.Update(crc, []byte{b}, fcsTable)
}

// fcsValue finalizes a running CRC into the value that would be
// transmitted at this point of the frame.
func fcsValue(crc uint16) uint16 {
	return crc16.Complete(crc, fcsTable)
}
