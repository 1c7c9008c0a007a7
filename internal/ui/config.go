package ui

// Config contains window/audio settings for the ebiten host app. Kept to
// a few window/audio fields; a ROM picker, settings editor,
// and per-ROM palette preferences are out of scope for this host (see
// DESIGN.md).
type Config struct {
	Title           string // window title
	Scale           int    // integer upscaling factor
	AudioStereo     bool   // true stereo output; false folds to mono
	AudioBufferMs   int    // defaulted to 60 but not read by App; the player buffer is 40 ms (20 ms low-latency)
	AudioLowLatency bool   // hard-cap buffering for minimal latency
}

// Defaults fills missing fields with reasonable values.
func (c *Config) Defaults() {
	if c.Title == "" {
		c.Title = "dmgcore"
	}
	if c.Scale <= 0 {
		c.Scale = 3
	}
	if c.AudioBufferMs <= 0 {
		c.AudioBufferMs = 60
	}
}
