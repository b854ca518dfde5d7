// Package capture turns a live PCM frame source into utterances.
// A Listener owns the source only for the duration of one Listen or
// Calibrate call, so the microphone is closed whenever nobody is listening.
package capture
