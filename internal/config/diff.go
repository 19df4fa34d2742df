package config

import "reflect"

// Changes describes what differs between two configs.
type Changes struct {
	// Dialogue is true when prompts, exit phrases or the voice changed.
	// These apply without a restart.
	Dialogue bool

	// LogLevel is true when server.log_level changed.
	LogLevel bool

	// Restart lists the changed sections that only take effect after a
	// restart.
	Restart []string
}

// Empty reports whether nothing changed.
func (c Changes) Empty() bool {
	return !c.Dialogue && !c.LogLevel && len(c.Restart) == 0
}

// Diff compares old and new.
func Diff(old, new *Config) Changes {
	c := Changes{
		Dialogue: !reflect.DeepEqual(old.Dialogue, new.Dialogue),
		LogLevel: old.Server.LogLevel != new.Server.LogLevel,
	}
	for _, s := range []struct {
		name     string
		old, new any
	}{
		{"server.listen_addr", old.Server.ListenAddr, new.Server.ListenAddr},
		{"audio", old.Audio, new.Audio},
		{"providers", old.Providers, new.Providers},
		{"fallbacks", old.Fallbacks, new.Fallbacks},
		{"recorder", old.Recorder, new.Recorder},
		{"playback", old.Playback, new.Playback},
	} {
		if !reflect.DeepEqual(s.old, s.new) {
			c.Restart = append(c.Restart, s.name)
		}
	}
	return c
}
