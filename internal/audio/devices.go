package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pulseproto "github.com/jfreymuth/pulse/proto"
)

// Device describes one PulseAudio input source.
type Device struct {
	ID          string
	Description string
	State       string
	Available   bool
	Muted       bool
	Default     bool
}

// Selection is the resolved capture source, with a warning when a fallback was taken.
type Selection struct {
	Device   Device
	Warning  string
	Fallback bool
}

// ListDevices returns the PulseAudio input sources.
func ListDevices(_ context.Context) ([]Device, error) {
	client, err := newClient(roleCapture)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	defaultSource, err := client.DefaultSource()
	if err != nil {
		return nil, fmt.Errorf("read default source: %w", err)
	}

	var infos pulseproto.GetSourceInfoListReply
	if err := client.RawRequest(&pulseproto.GetSourceInfoList{}, &infos); err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	return devicesFromInfos(infos, defaultSource.ID()), nil
}

func devicesFromInfos(infos pulseproto.GetSourceInfoListReply, defaultID string) []Device {
	devices := make([]Device, 0, len(infos))
	for _, info := range infos {
		if info == nil {
			continue
		}
		devices = append(devices, Device{
			ID:          info.SourceName,
			Description: info.Device,
			State:       sourceStateString(info.State),
			Available:   sourceAvailable(info),
			Muted:       info.Mute,
			Default:     info.SourceName == defaultID,
		})
	}
	return devices
}

// SelectDevice resolves audio.input and audio.fallback against the live sources.
func SelectDevice(ctx context.Context, input string, fallback string) (Selection, error) {
	devices, err := ListDevices(ctx)
	if err != nil {
		return Selection{}, err
	}
	return selectDeviceFromList(devices, input, fallback)
}

// isDefaultTerm reports whether a preference defers to the server default source.
func isDefaultTerm(term string) bool {
	return term == "" || term == "default"
}

func findDevice(devices []Device, term string) *Device {
	if isDefaultTerm(term) {
		return nil
	}
	for i := range devices {
		if deviceMatches(devices[i], term) {
			return &devices[i]
		}
	}
	return nil
}

func defaultDevice(devices []Device) *Device {
	for i := range devices {
		if devices[i].Default {
			return &devices[i]
		}
	}
	return nil
}

func selectDeviceFromList(devices []Device, input string, fallback string) (Selection, error) {
	if len(devices) == 0 {
		return Selection{}, errors.New("no audio input devices found")
	}

	input = strings.ToLower(strings.TrimSpace(input))
	fallback = strings.ToLower(strings.TrimSpace(fallback))
	serverDefault := defaultDevice(devices)

	primary := serverDefault
	if !isDefaultTerm(input) {
		primary = findDevice(devices, input)
		if primary == nil {
			return Selection{}, fmt.Errorf("audio.input %q did not match any device", input)
		}
	}
	if primary == nil {
		return Selection{}, errors.New("default audio source is unavailable")
	}
	if usable(*primary) {
		return Selection{Device: *primary}, nil
	}

	reason := "unavailable"
	if primary.Muted {
		reason = "muted"
	}

	alternate := serverDefault
	if !isDefaultTerm(fallback) {
		alternate = findDevice(devices, fallback)
		if alternate == nil {
			return Selection{}, fmt.Errorf("primary input %q is %s and fallback %q not found", primary.ID, reason, fallback)
		}
	}
	if alternate == nil {
		return Selection{}, fmt.Errorf("primary input %q is %s and no usable fallback: default audio source is unavailable", primary.ID, reason)
	}

	switch {
	case !alternate.Available:
		return Selection{}, fmt.Errorf("audio fallback device %q is not available", alternate.ID)
	case alternate.Muted:
		return Selection{}, fmt.Errorf("audio fallback device %q is muted", alternate.ID)
	}

	return Selection{
		Device:   *alternate,
		Warning:  fmt.Sprintf("audio.input %q is %s; falling back to %q", primary.ID, reason, alternate.ID),
		Fallback: primary.ID != alternate.ID,
	}, nil
}

func usable(d Device) bool {
	return d.Available && !d.Muted
}

// deviceMatches reports whether term appears in a device id or description.
func deviceMatches(device Device, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(device.ID), term) ||
		strings.Contains(strings.ToLower(device.Description), term)
}

func sourceStateString(state uint32) string {
	switch state {
	case 0:
		return "running"
	case 1:
		return "idle"
	case 2:
		return "suspended"
	default:
		return fmt.Sprintf("unknown(%d)", state)
	}
}

func sourceAvailable(source *pulseproto.GetSourceInfoReply) bool {
	if source == nil {
		return false
	}
	for _, port := range source.Ports {
		if port.Name == source.ActivePortName {
			// unknown=0, no=1, yes=2
			return port.Available != 1
		}
	}
	return true
}
