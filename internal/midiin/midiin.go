package midiin

import (
	"fmt"
	"log"
	"strings"

	gomidi "gitlab.com/gomidi/midi/v2"

	"github.com/looploom/looploom/internal/types"
)

// NoteHandler receives translated live input. Channel 10 (GM percussion)
// notes arrive as drum sound ids, everything else as pitch names.
type NoteHandler func(note string, velocity float64, on bool)

// Devices lists the names of the available MIDI input ports.
func Devices() []string {
	ins := gomidi.GetInPorts()
	names := make([]string, 0, len(ins))
	for _, in := range ins {
		names = append(names, in.String())
	}
	return names
}

// Listen connects a MIDI input port (matched by case-insensitive
// substring) and feeds note events to the handler until the returned stop
// function is called.
func Listen(device string, h NoteHandler) (func(), error) {
	ins := gomidi.GetInPorts()
	want := strings.ToLower(device)
	for _, in := range ins {
		if !strings.Contains(strings.ToLower(in.String()), want) {
			continue
		}
		stop, err := gomidi.ListenTo(in, func(msg gomidi.Message, timestampms int32) {
			var ch, key, vel uint8
			switch {
			case msg.GetNoteStart(&ch, &key, &vel):
				h(translate(ch, key), float64(vel)/127.0, true)
			case msg.GetNoteEnd(&ch, &key):
				h(translate(ch, key), 0, false)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("midiin: listen to %q: %w", in.String(), err)
		}
		log.Printf("midiin: listening on %q", in.String())
		return stop, nil
	}
	return nil, fmt.Errorf("midiin: no input port matching %q", device)
}

// translate maps a MIDI key to the note identifier the rest of the system
// uses. GM channel 10 (index 9) carries percussion.
func translate(ch, key uint8) string {
	if ch == 9 {
		if name, ok := types.PercussionName(key); ok {
			return name
		}
	}
	return types.NoteName(key)
}
