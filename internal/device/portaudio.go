package device

import (
	"fmt"

	"github.com/gordonklaus/portaudio"

	"github.com/skypro1111/voiceloop/internal/fault"
)

const stageDevice = "device"

// Info describes an audio device reported by the host
type Info struct {
	Index             int     `json:"index"`
	Name              string  `json:"name"`
	HostAPI           string  `json:"host_api"`
	MaxInputChannels  int     `json:"max_input_channels"`
	MaxOutputChannels int     `json:"max_output_channels"`
	DefaultSampleRate float64 `json:"default_sample_rate"`
	DefaultInput      bool    `json:"default_input"`
	DefaultOutput     bool    `json:"default_output"`
}

// Initialize initializes the PortAudio library
func Initialize() error {
	if err := portaudio.Initialize(); err != nil {
		return fault.New(fault.KindDevice, stageDevice, fmt.Errorf("failed to initialize PortAudio: %w", err))
	}
	return nil
}

// Terminate releases the PortAudio library
func Terminate() error {
	return portaudio.Terminate()
}

// CheckOutput verifies that a default output device exists
func CheckOutput() error {
	d, err := portaudio.DefaultOutputDevice()
	if err != nil {
		return fault.New(fault.KindDevice, stageDevice, fmt.Errorf("no default output device: %w", err))
	}
	if d.MaxOutputChannels < 1 {
		return fault.New(fault.KindDevice, stageDevice, fmt.Errorf("output device %q has no output channels", d.Name))
	}
	return nil
}

// ListDevices returns all input and output devices
func ListDevices() ([]Info, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fault.New(fault.KindDevice, stageDevice, fmt.Errorf("failed to list devices: %w", err))
	}

	var defaultIn, defaultOut *portaudio.DeviceInfo
	if d, err := portaudio.DefaultInputDevice(); err == nil {
		defaultIn = d
	}
	if d, err := portaudio.DefaultOutputDevice(); err == nil {
		defaultOut = d
	}

	infos := make([]Info, 0, len(devices))
	for i, d := range devices {
		info := Info{
			Index:             i,
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			MaxOutputChannels: d.MaxOutputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			DefaultInput:      defaultIn != nil && d.Name == defaultIn.Name,
			DefaultOutput:     defaultOut != nil && d.Name == defaultOut.Name,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		infos = append(infos, info)
	}

	return infos, nil
}
