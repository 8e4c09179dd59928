package link

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCtrlNibbles(t *testing.T) {
	testCases := []struct {
		ctrl    Ctrl
		command Ctrl
		payload byte
	}{
		{0xF1, MCAPI, 1},
		{0x90, MCPCH, 0},
		{0xA7, MCAMA, 7},
		{0x0F, CtrlData, 15},
		{0xCF, MCDISC, 15},
	}
	for _, tc := range testCases {
		require.Equal(t, tc.command, tc.ctrl.Command())
		require.Equal(t, tc.payload, tc.ctrl.Payload())
	}
}

func TestCtrlWithPayload(t *testing.T) {
	require.Equal(t, Ctrl(0xF3), MCAPI.WithPayload(3))
	require.Equal(t, Ctrl(0xD2), MCAPA.WithPayload(0x12), "payload is 4 bits")
	require.Equal(t, Ctrl(0x80), MCVR.WithPayload(0))
}

func TestCtrlString(t *testing.T) {
	require.Equal(t, "MCAPI/1", Ctrl(0xF1).String())
	require.Equal(t, "DATA/0", CtrlData.String())
	// MCOK and MCUA collide, the reading depends on context
	require.Equal(t, "MCOK/0", MCUA.String())
}

func TestCtrlFrame(t *testing.T) {
	require.Equal(t, []byte{0x11, 0x90, 0x00}, ctrlFrame(0x11, MCPCH, 0x00))
}
