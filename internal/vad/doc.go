// Package vad provides energy-based voice activity detection and utterance
// segmentation. The detector is calibrated once against ambient noise; the
// segmenter turns a stream of classified frames into a single utterance
// bounded by a silence tail.
package vad
