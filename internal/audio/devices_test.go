package audio

import (
	"context"
	"reflect"
	"testing"

	pulseproto "github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/require"
)

func TestSelectDeviceFromList(t *testing.T) {
	elgato := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono", Available: true, Default: true}
	sony := Device{ID: "bluez_input.sony", Description: "Sony WH-1000XM6", Available: true}
	mutedElgato := elgato
	mutedElgato.Muted = true
	offlineSony := sony
	offlineSony.Available = false

	tests := []struct {
		name         string
		devices      []Device
		input        string
		fallback     string
		wantID       string
		wantWarning  string
		wantFallback bool
		wantErr      string
	}{
		{name: "default", devices: []Device{elgato, sony}, input: "default", fallback: "default", wantID: elgato.ID},
		{name: "by description", devices: []Device{elgato, sony}, input: "Sony", fallback: "default", wantID: sony.ID},
		{name: "muted primary uses fallback", devices: []Device{mutedElgato, sony}, input: "elgato", fallback: "sony", wantID: sony.ID, wantWarning: "muted", wantFallback: true},
		{name: "offline primary uses default", devices: []Device{elgato, offlineSony}, input: "sony", fallback: "", wantID: elgato.ID, wantWarning: "unavailable", wantFallback: true},
		{name: "muted default without fallback", devices: []Device{mutedElgato}, input: "default", fallback: "default", wantErr: "muted"},
		{name: "unknown input", devices: []Device{elgato}, input: "missing", fallback: "default", wantErr: "did not match"},
		{name: "unknown fallback", devices: []Device{mutedElgato, sony}, input: "default", fallback: "missing", wantErr: "fallback \"missing\" not found"},
		{name: "no devices", devices: nil, input: "default", wantErr: "no audio input devices"},
		{name: "no default", devices: []Device{sony}, input: "default", wantErr: "default audio source is unavailable"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			selection, err := selectDeviceFromList(tc.devices, tc.input, tc.fallback)
			if tc.wantErr != "" {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.wantID, selection.Device.ID)
			require.Equal(t, tc.wantFallback, selection.Fallback)
			if tc.wantWarning == "" {
				require.Empty(t, selection.Warning)
			} else {
				require.Contains(t, selection.Warning, tc.wantWarning)
			}
		})
	}
}

func TestDeviceMatchesByIDAndDescription(t *testing.T) {
	dev := Device{ID: "alsa_input.usb-elgato", Description: "Elgato Wave 3 Mono"}
	require.True(t, deviceMatches(dev, "elgato"))
	require.True(t, deviceMatches(dev, "wave 3"))
	require.False(t, deviceMatches(dev, "missing"))
	require.False(t, deviceMatches(dev, ""))
}

func TestDevicesFromInfos(t *testing.T) {
	infos := pulseproto.GetSourceInfoListReply{
		{SourceName: "mic-a", Device: "Mic A", State: 1},
		nil,
		{SourceName: "mic-b", Device: "Mic B", State: 2, Mute: true},
	}

	devices := devicesFromInfos(infos, "mic-b")
	require.Len(t, devices, 2)
	require.Equal(t, Device{ID: "mic-a", Description: "Mic A", State: "idle", Available: true}, devices[0])
	require.True(t, devices[1].Default)
	require.True(t, devices[1].Muted)
	require.Equal(t, "suspended", devices[1].State)
}

func TestListDevicesFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ListDevices(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "connect pulse server")
}

func TestProbePlaybackFailsWhenPulseUnavailable(t *testing.T) {
	t.Setenv("PULSE_SERVER", "unix:/tmp/definitely-missing-pulse-server")
	_, err := ProbePlayback(context.Background())
	require.Error(t, err)
}

func TestSourceStateString(t *testing.T) {
	require.Equal(t, "running", sourceStateString(0))
	require.Equal(t, "idle", sourceStateString(1))
	require.Equal(t, "suspended", sourceStateString(2))
	require.Equal(t, "unknown(99)", sourceStateString(99))
}

func TestSourceAvailable(t *testing.T) {
	require.False(t, sourceAvailable(nil))
	require.True(t, sourceAvailable(&pulseproto.GetSourceInfoReply{}))

	available := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, available, []sourcePort{{name: "mic", available: 2}})
	require.True(t, sourceAvailable(available))

	notAvailable := &pulseproto.GetSourceInfoReply{ActivePortName: "mic"}
	setSourcePorts(t, notAvailable, []sourcePort{{name: "line", available: 2}, {name: "mic", available: 1}})
	require.False(t, sourceAvailable(notAvailable))
}

type sourcePort struct {
	name      string
	available uint32
}

// setSourcePorts fills the unexported-type Ports slice through reflection.
func setSourcePorts(t *testing.T, reply *pulseproto.GetSourceInfoReply, ports []sourcePort) {
	t.Helper()

	sliceValue := reflect.MakeSlice(reflect.TypeOf(reply.Ports), len(ports), len(ports))
	for i, port := range ports {
		item := sliceValue.Index(i)
		item.FieldByName("Name").SetString(port.name)
		item.FieldByName("Available").SetUint(uint64(port.available))
	}
	reflect.ValueOf(reply).Elem().FieldByName("Ports").Set(sliceValue)
}
