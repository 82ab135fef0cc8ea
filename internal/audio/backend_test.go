package audio

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetermineBackend(t *testing.T) {
	assert.Equal(t, BackendTypePulse, DetermineBackend("pulse"))
	assert.Equal(t, BackendTypeALSA, DetermineBackend("ALSA"))
	assert.Equal(t, BackendTypeAVFoundation, DetermineBackend("avfoundation"))

	want := BackendTypePulse
	if runtime.GOOS == "darwin" {
		want = BackendTypeAVFoundation
	}
	assert.Equal(t, want, DetermineBackend("auto"))
	assert.Equal(t, want, DetermineBackend(""))
}

func TestInputArgs(t *testing.T) {
	assert.Equal(t, []string{"-f", "pulse", "-i", "default"}, BackendTypePulse.InputArgs(""))
	assert.Equal(t, []string{"-f", "alsa", "-i", "hw:0"}, BackendTypeALSA.InputArgs("hw:0"))
	assert.Equal(t, []string{"-f", "avfoundation", "-i", ":0"}, BackendTypeAVFoundation.InputArgs("default"))
	assert.Equal(t, []string{"-f", "avfoundation", "-i", ":2"}, BackendTypeAVFoundation.InputArgs("2"))
}

func TestParsePactlSources(t *testing.T) {
	output := "0\talsa_output.pci-0000_00_1f.3.analog-stereo.monitor\tmodule-alsa-card.c\ts16le 2ch 44100Hz\tSUSPENDED\n" +
		"1\talsa_input.pci-0000_00_1f.3.analog-stereo\tmodule-alsa-card.c\ts16le 2ch 44100Hz\tRUNNING\n" +
		"\n" +
		"2\tbluez_input.headset\tmodule-bluez5-device.c\ts16le 1ch 16000Hz\tIDLE\n"

	assert.Equal(t, []string{
		"alsa_input.pci-0000_00_1f.3.analog-stereo",
		"bluez_input.headset",
	}, parsePactlSources(output))
}

func TestParseArecordList(t *testing.T) {
	output := `null
    Discard all samples (playback) or generate zero samples (capture)
default
    Default ALSA Output
hw:CARD=PCH,DEV=0
    HDA Intel PCH, ALC257 Analog
`
	assert.Equal(t, []string{"default", "hw:CARD=PCH,DEV=0"}, parseArecordList(output))
}

func TestParseAVFoundationList(t *testing.T) {
	output := `[AVFoundation indev @ 0x7f] AVFoundation video devices:
[AVFoundation indev @ 0x7f] [0] FaceTime HD Camera
[AVFoundation indev @ 0x7f] AVFoundation audio devices:
[AVFoundation indev @ 0x7f] [0] MacBook Pro Microphone
[AVFoundation indev @ 0x7f] [1] External USB Mic
: Input/output error`

	assert.Equal(t, []string{"[0] MacBook Pro Microphone", "[1] External USB Mic"}, parseAVFoundationList(output))
}
