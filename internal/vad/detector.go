package vad

import (
	"fmt"
	"math"
	"sync"
	"time"
)

// DetectorConfig contains energy detector parameters
type DetectorConfig struct {
	// Multiplier applied to the calibrated ambient energy to get the threshold
	Multiplier float64
	// MinEnergy is the lowest threshold ever used (RMS in 16-bit units)
	MinEnergy float64
	// Smoothing weights the previous energy in [0, 1); 0 disables smoothing
	Smoothing float64
}

// Detector classifies PCM frames as voice or silence by RMS energy
type Detector struct {
	config    DetectorConfig
	threshold float64

	// detector state
	calibrated bool
	lastEnergy float64
	ambient    float64

	// Statistics
	totalFrames   uint64
	voiceFrames   uint64
	lastProcessed time.Time

	mu sync.RWMutex
}

// Result represents the classification of one frame
type Result struct {
	Energy     float64 `json:"energy"`
	HasVoice   bool    `json:"has_voice"`
	Confidence float32 `json:"confidence"` // distance from threshold scaled to 0-1
}

// DetectorStats represents detector statistics
type DetectorStats struct {
	Calibrated      bool      `json:"calibrated"`
	AmbientEnergy   float64   `json:"ambient_energy"`
	Threshold       float64   `json:"threshold"`
	TotalFrames     uint64    `json:"total_frames"`
	VoiceFrames     uint64    `json:"voice_frames"`
	VoicePercentage float64   `json:"voice_percentage"`
	LastProcessed   time.Time `json:"last_processed"`
}

// NewDetector creates a detector whose threshold starts at MinEnergy
func NewDetector(config DetectorConfig) (*Detector, error) {
	if config.Multiplier < 1 {
		return nil, fmt.Errorf("multiplier must be at least 1, got %f", config.Multiplier)
	}

	if config.MinEnergy <= 0 {
		return nil, fmt.Errorf("min energy must be positive, got %f", config.MinEnergy)
	}

	if config.Smoothing < 0 || config.Smoothing >= 1 {
		return nil, fmt.Errorf("smoothing must be in [0, 1), got %f", config.Smoothing)
	}

	return &Detector{
		config:    config,
		threshold: config.MinEnergy,
	}, nil
}

// Calibrate sets the threshold from frames of ambient noise and returns the
// measured ambient energy
func (d *Detector) Calibrate(frames [][]int16) (float64, error) {
	if len(frames) == 0 {
		return 0, fmt.Errorf("no ambient audio captured for calibration")
	}

	var sum float64
	for _, frame := range frames {
		sum += RMS(frame)
	}
	ambient := sum / float64(len(frames))

	d.mu.Lock()
	defer d.mu.Unlock()

	d.ambient = ambient
	d.threshold = math.Max(d.config.MinEnergy, ambient*d.config.Multiplier)
	d.calibrated = true
	d.lastEnergy = 0

	return ambient, nil
}

// Process classifies one frame of samples
func (d *Detector) Process(samples []int16) Result {
	energy := RMS(samples)

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.totalFrames > 0 && d.config.Smoothing > 0 {
		energy = d.config.Smoothing*d.lastEnergy + (1-d.config.Smoothing)*energy
	}
	d.lastEnergy = energy

	hasVoice := energy >= d.threshold

	d.totalFrames++
	if hasVoice {
		d.voiceFrames++
	}
	d.lastProcessed = time.Now()

	// Confidence grows with the distance from the threshold, saturating at 2x
	confidence := math.Abs(energy-d.threshold) / d.threshold
	if confidence > 1 {
		confidence = 1
	}

	return Result{
		Energy:     energy,
		HasVoice:   hasVoice,
		Confidence: float32(confidence),
	}
}

// GetStats returns current detector statistics
func (d *Detector) GetStats() DetectorStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	voicePercentage := float64(0)
	if d.totalFrames > 0 {
		voicePercentage = float64(d.voiceFrames) / float64(d.totalFrames) * 100
	}

	return DetectorStats{
		Calibrated:      d.calibrated,
		AmbientEnergy:   d.ambient,
		Threshold:       d.threshold,
		TotalFrames:     d.totalFrames,
		VoiceFrames:     d.voiceFrames,
		VoicePercentage: voicePercentage,
		LastProcessed:   d.lastProcessed,
	}
}

// UpdateThreshold overrides the energy threshold
func (d *Detector) UpdateThreshold(threshold float64) error {
	if threshold <= 0 {
		return fmt.Errorf("threshold must be positive, got %f", threshold)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.threshold = threshold
	return nil
}

// GetThreshold returns the current energy threshold
func (d *Detector) GetThreshold() float64 {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.threshold
}

// IsCalibrated returns whether ambient calibration has run
func (d *Detector) IsCalibrated() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.calibrated
}

// Reset clears smoothing state between utterances
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.lastEnergy = 0
	d.totalFrames = 0
	d.voiceFrames = 0
	d.lastProcessed = time.Time{}
}

// RMS returns the root mean square of samples
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}

	var energy float64
	for _, sample := range samples {
		energy += float64(sample) * float64(sample)
	}
	return math.Sqrt(energy / float64(len(samples)))
}
