package speech

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/text/language"
)

func TestNoop_Speak(t *testing.T) {
	// Must be a silent no-op, never a panic.
	assert.NotPanics(t, func() {
		Noop{}.Speak(context.Background(), "hello")
	})
}

func TestNoop_RecognizeOnce(t *testing.T) {
	_, err := Noop{}.RecognizeOnce(context.Background(), language.English, strings.NewReader(""))
	assert.ErrorIs(t, err, ErrRecognizerUnavailable)
}

func TestEngine_SpeakEmptyTextIsNoop(t *testing.T) {
	e := NewEngine("test-key")
	e.Speak(context.Background(), "")

	e.mu.Lock()
	defer e.mu.Unlock()
	assert.Nil(t, e.cancel, "empty text must not start an utterance")
}
