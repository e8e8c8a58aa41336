package tts

// VoiceProfile describes a TTS voice configuration for narration.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.25–4.0, 1.0 = default). Zero means
	// the provider default.
	SpeedFactor float64
}
