package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is true when the mentor's live-session voice changed.
	// Applies to the next session; open sessions keep their voice.
	VoiceChanged bool
	NewVoice     string

	// MaxTurnsChanged is true when the chat turn-replay cap changed.
	MaxTurnsChanged bool
	NewMaxTurns     int

	// CurriculumChanged is true when the curriculum file path changed.
	// Applying it requires a content reload and merge, not just a restart of
	// the HTTP layer.
	CurriculumChanged bool
	NewCurriculumFile string
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.VoiceChanged || d.MaxTurnsChanged || d.CurriculumChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}
	if old.Mentor.Voice != new.Mentor.Voice {
		d.VoiceChanged = true
		d.NewVoice = new.Mentor.Voice
	}
	if old.Mentor.MaxTurns != new.Mentor.MaxTurns {
		d.MaxTurnsChanged = true
		d.NewMaxTurns = new.Mentor.MaxTurns
	}
	if old.Curriculum.File != new.Curriculum.File {
		d.CurriculumChanged = true
		d.NewCurriculumFile = new.Curriculum.File
	}

	return d
}
