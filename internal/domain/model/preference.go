package model

// Preference holds per-user flags. The zero value is the default for new users.
type Preference struct {
	VoiceEnabled bool `json:"voice_enabled"`
}
