package audio

import (
	"fmt"
	"sort"
	"strings"

	"github.com/gordonklaus/portaudio"
)

// Device describes a PortAudio device for --list-devices.
type Device struct {
	Name            string
	MaxInput        int
	MaxOutput       int
	DefaultSampleHz float64
	HostAPI         string
	IsDefaultInput  bool
	IsDefaultOutput bool
}

// ListDevices returns all devices across host APIs sorted by host and name.
func ListDevices() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}
	defaultIn := defaultInputIndex()

	devices := make([]Device, 0, len(hosts)*4)
	for _, host := range hosts {
		for _, d := range host.Devices {
			devices = append(devices, Device{
				Name:            d.Name,
				MaxInput:        d.MaxInputChannels,
				MaxOutput:       d.MaxOutputChannels,
				DefaultSampleHz: d.DefaultSampleRate,
				HostAPI:         host.Name,
				IsDefaultInput:  d.Index == defaultIn,
				IsDefaultOutput: host.DefaultOutputDevice != nil && d.Index == host.DefaultOutputDevice.Index,
			})
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		if devices[i].HostAPI == devices[j].HostAPI {
			return devices[i].Name < devices[j].Name
		}
		return devices[i].HostAPI < devices[j].HostAPI
	})
	return devices, nil
}

// AutoDetectDevice returns the input device NewCapture would pick without a
// name.
func AutoDetectDevice() (*portaudio.DeviceInfo, error) {
	return findInputDevice("")
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if name != "" {
		if d := matchInputDevice(devices, name); d != nil {
			return d, nil
		}
		return nil, fmt.Errorf("audio input device %q not found", name)
	}

	hostIn := -1
	if host, err := portaudio.DefaultHostApi(); err == nil && host != nil && host.DefaultInputDevice != nil {
		hostIn = host.DefaultInputDevice.Index
	}
	ranked := rankInputDevices(devices, defaultInputIndex(), hostIn)
	if len(ranked) == 0 {
		return nil, fmt.Errorf("no audio input device found")
	}
	return ranked[0], nil
}

func defaultInputIndex() int {
	if d, err := portaudio.DefaultInputDevice(); err == nil && d != nil {
		return d.Index
	}
	return -1
}

func matchInputDevice(devices []*portaudio.DeviceInfo, name string) *portaudio.DeviceInfo {
	name = strings.ToLower(name)
	for _, d := range devices {
		if d != nil && d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), name) {
			return d
		}
	}
	return nil
}

// loopbackHints mark devices that capture what the machine is playing.
var loopbackHints = []string{"monitor", "loopback", "stereo mix", "what u hear", "mix"}

// rankInputDevices orders input-capable devices best first. Defaults win,
// then loopback-style devices, then channel count; ties sort by name.
func rankInputDevices(devices []*portaudio.DeviceInfo, defaultIn, hostIn int) []*portaudio.DeviceInfo {
	type scored struct {
		dev   *portaudio.DeviceInfo
		score int
	}
	var results []scored
	for _, d := range devices {
		if d == nil || d.MaxInputChannels <= 0 {
			continue
		}
		score := d.MaxInputChannels
		if d.Index == defaultIn {
			score += 50
		}
		if d.Index == hostIn {
			score += 40
		}
		lower := strings.ToLower(d.Name)
		for _, hint := range loopbackHints {
			if strings.Contains(lower, hint) {
				score += 20
				break
			}
		}
		if strings.Contains(lower, "default") {
			score += 10
		}
		results = append(results, scored{dev: d, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return strings.ToLower(results[i].dev.Name) < strings.ToLower(results[j].dev.Name)
		}
		return results[i].score > results[j].score
	})

	out := make([]*portaudio.DeviceInfo, len(results))
	for i, r := range results {
		out[i] = r.dev
	}
	return out
}
