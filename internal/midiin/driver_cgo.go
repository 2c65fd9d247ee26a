//go:build cgo

package midiin

import (
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv" // register MIDI driver
)
