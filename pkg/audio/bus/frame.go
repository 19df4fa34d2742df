package bus

import "github.com/MrWong99/vocalis/pkg/audio"

// Frame is the unit carried by the bus.
type Frame = audio.Frame
