package tts

// VoiceProfile selects and shapes the coach's voice. For VOICEVOX the ID is
// the numeric speaker ID ("3" is ずんだもん ノーマル); other backends use
// their own identifiers, so profiles are not portable across providers.
type VoiceProfile struct {
	// ID is the backend-specific voice identifier.
	ID string

	// Name is the human-readable voice name, for config files and logs.
	Name string

	// Provider names the backend this voice belongs to.
	Provider string

	// PitchShift moves the pitch in backend units, -10 to +10. Zero keeps
	// the voice's default.
	PitchShift float64

	// SpeedFactor scales the speaking rate, 0.5 to 2.0. Zero or 1.0 keeps
	// the default. Coaching replies mid-round often run at 1.2 or so, since
	// the player wants the answer before the round state changes.
	SpeedFactor float64

	// Metadata carries backend-specific attributes such as a VOICEVOX
	// speaker UUID or style name.
	Metadata map[string]string
}
