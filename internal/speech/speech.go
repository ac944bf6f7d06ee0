// Package speech defines the black-box speech capability boundary: render
// text as audible speech, and turn one clip of audio into one final
// transcript. Engines are adapters; nothing here implements speech itself.
package speech

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/text/language"
)

// ErrRecognizerUnavailable is returned when no recognition engine is
// configured. Callers surface it to the user; it never crashes a session.
var ErrRecognizerUnavailable = errors.New("speech recognition engine unavailable")

// Speaker renders text as audible speech. Speak is fire-and-forget: it
// cancels any in-flight utterance first (one active utterance per session)
// and swallows engine failures.
type Speaker interface {
	Speak(ctx context.Context, text string)
}

// Recognizer converts one clip of live audio into one final transcript.
// Single-shot, not streaming.
type Recognizer interface {
	RecognizeOnce(ctx context.Context, locale language.Tag, audio io.Reader) (string, error)
}

// Noop is the engine used when no speech backend is configured. Speaking
// logs and does nothing; recognition reports itself unavailable.
type Noop struct{}

func (Noop) Speak(ctx context.Context, text string) {
	slog.Debug("No speech engine configured, skipping playback", "chars", len(text))
}

func (Noop) RecognizeOnce(ctx context.Context, locale language.Tag, audio io.Reader) (string, error) {
	return "", ErrRecognizerUnavailable
}
