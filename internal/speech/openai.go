package speech

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/text/language"
)

// Engine adapts the OpenAI audio APIs to the Speaker and Recognizer
// contracts. Synthesized audio is written to a configurable sink (an audio
// device pipe in production, io.Discard by default).
type Engine struct {
	client *openai.Client
	sink   io.Writer

	// mu guards cancel: at most one utterance is in flight, and a new
	// Speak call cancels the previous one before starting.
	mu     sync.Mutex
	cancel context.CancelFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithSink directs synthesized audio to w.
func WithSink(w io.Writer) EngineOption {
	return func(e *Engine) {
		e.sink = w
	}
}

// NewEngine creates an OpenAI-backed speech engine.
func NewEngine(apiKey string, opts ...EngineOption) *Engine {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	e := &Engine{
		client: &client,
		sink:   io.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Speak renders text as speech. It cancels any in-flight utterance, runs
// asynchronously, and never surfaces engine failure to the caller.
func (e *Engine) Speak(ctx context.Context, text string) {
	if text == "" {
		return
	}

	e.mu.Lock()
	if e.cancel != nil {
		e.cancel()
	}
	utterCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	go func() {
		defer cancel()

		res, err := e.client.Audio.Speech.New(utterCtx, openai.AudioSpeechNewParams{
			Model: openai.SpeechModelTTS1,
			Voice: openai.AudioSpeechNewParamsVoiceAlloy,
			Input: text,
		})
		if err != nil {
			slog.Warn("Speech synthesis failed", "error", err)
			return
		}
		defer res.Body.Close()

		if _, err := io.Copy(e.sink, res.Body); err != nil {
			slog.Debug("Speech playback interrupted", "error", err)
		}
	}()
}

// RecognizeOnce transcribes a single audio clip into one final transcript.
func (e *Engine) RecognizeOnce(ctx context.Context, locale language.Tag, audio io.Reader) (string, error) {
	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  audio,
	}
	if !locale.IsRoot() {
		base, _ := locale.Base()
		params.Language = openai.String(base.String())
	}

	transcription, err := e.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return "", err
	}
	return transcription.Text, nil
}
