// Package netmic receives microphone audio from a remote device over UDP
// and exposes it as a capture frame source. Packets follow the framing in
// package protocol; out-of-order packets are restored by sequence number.
// Audio arriving while nobody is listening is dropped.
package netmic
