package notify

import (
	"context"
	"os"
	"os/exec"
	"runtime"

	"blinkwatch/internal/analytics/application/events"
)

// SoundSink plays an alert sound through whatever platform player is
// available, falling back to the terminal bell. Playback runs on its own
// goroutine so the sample loop is never blocked.
type SoundSink struct {
	soundFile string
	lookPath  func(string) (string, error)
	startCmd  func(name string, args ...string) error
}

// SoundOption configures the sink.
type SoundOption func(*SoundSink)

// WithSoundFile plays a custom sound file instead of the system defaults.
func WithSoundFile(path string) SoundOption {
	return func(s *SoundSink) {
		s.soundFile = path
	}
}

// NewSoundSink constructs a sound sink.
func NewSoundSink(opts ...SoundOption) *SoundSink {
	sink := &SoundSink{
		lookPath: exec.LookPath,
		startCmd: func(name string, args ...string) error {
			return exec.Command(name, args...).Start()
		},
	}
	for _, opt := range opts {
		opt(sink)
	}
	return sink
}

// Fire implements Sink.
func (s *SoundSink) Fire(ctx context.Context, _ events.AlertFired) {
	if s == nil {
		return
	}
	_ = ctx
	go s.play()
}

func (s *SoundSink) play() {
	if s.soundFile != "" {
		for _, player := range []string{"paplay", "afplay", "aplay"} {
			if s.tryPlay(player, s.soundFile) {
				return
			}
		}
	}

	if runtime.GOOS == "darwin" {
		if s.tryPlay("afplay", "/System/Library/Sounds/Glass.aiff") {
			return
		}
	}

	for _, candidate := range []string{
		"/usr/share/sounds/freedesktop/stereo/alarm-clock-elapsed.oga",
		"/usr/share/sounds/freedesktop/stereo/complete.oga",
	} {
		if s.tryPlay("paplay", candidate) {
			return
		}
	}
	if s.tryPlay("aplay", "/usr/share/sounds/alsa/Front_Center.wav") {
		return
	}

	// Terminal bell as the last resort.
	os.Stdout.WriteString("\a")
}

func (s *SoundSink) tryPlay(player, file string) bool {
	if _, err := s.lookPath(player); err != nil {
		return false
	}
	if _, err := os.Stat(file); err != nil {
		return false
	}
	return s.startCmd(player, file) == nil
}
