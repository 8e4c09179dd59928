// Package link implements the Nanoréseau link layer on top of the wire
// layer: control words, consignes, the per-station session table, the
// single-slot command mailbox and the controller state machine driving
// the named protocol exchanges (initial call, echo, take-charge,
// queueing notice, acknowledge, disconnect, data transfer).
//
// The controller arbitrates as bus master at address 0.
package link
