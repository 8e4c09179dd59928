// Package wire implements the bit-synchronous layer of the Nanoréseau
// bus: HDLC framing with zero-bit stuffing, CRC-16/X-25 frame check
// sequences, the flag/abort hunter, the address-filtered receiver, the
// clock-gated transmitter and the clock-presence detector.
//
// The wire idles at an undefined DC level and is externally clocked at a
// nominal 500 kHz, LSB first within each byte. All hardware access goes
// through the Driver interface; Loopback provides a software wire for
// tests and simulation.
package wire
