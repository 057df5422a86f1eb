package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
)

// TypeHuman types text into an element with human-like timing: 50-150ms
// between keystrokes. It stops early when ctx is done.
func TypeHuman(ctx context.Context, el *rod.Element, text string) error {
	for _, char := range text {
		if err := el.Type(input.Key(char)); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(50+rand.Intn(100)) * time.Millisecond):
		}
	}
	return nil
}

// TypeFast types text without delays. Each character still produces
// keydown/keyup events.
func TypeFast(el *rod.Element, text string) error {
	runes := []rune(text)
	keys := make([]input.Key, len(runes))
	for i, char := range runes {
		keys[i] = input.Key(char)
	}
	return el.Type(keys...)
}
