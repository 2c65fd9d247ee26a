package export

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/go-audio/wav"
)

// Transport is the slice of the engine the bounce needs.
type Transport interface {
	Play()
	Stop()
	TimelineSeconds() float64
}

// CaptureControl starts and stops an offline audio capture in the external
// sound renderer.
type CaptureControl interface {
	CaptureStart(path string) error
	CaptureStop() error
}

const (
	// startDelay is the scheduled gap between arming the capture and
	// starting the transport, so the first downbeat is never clipped.
	startDelay = 250 * time.Millisecond
	// tailMargin lets releases ring out past the final cycle.
	tailMargin = 500 * time.Millisecond
)

// Bounce renders one full ensemble cycle offline:
// stop -> arm capture -> start transport after a short delay -> wait one
// timeline duration plus margin -> stop -> close capture -> validate.
// The capture handle is released on every path, including cancellation.
func Bounce(ctx context.Context, t Transport, cc CaptureControl, path string) error {
	dur := t.TimelineSeconds()
	if dur <= 0 {
		return errors.New("export: nothing to bounce, no layers")
	}

	t.Stop()
	if err := cc.CaptureStart(path); err != nil {
		return fmt.Errorf("export: start capture: %w", err)
	}
	captureOpen := true
	defer func() {
		if captureOpen {
			if err := cc.CaptureStop(); err != nil {
				log.Printf("export: capture release failed: %v", err)
			}
		}
	}()

	if err := wait(ctx, startDelay); err != nil {
		return err
	}
	t.Play()

	total := time.Duration(dur*float64(time.Second)) + tailMargin
	log.Printf("export: bouncing %s of audio to %s", total, path)
	if err := wait(ctx, total); err != nil {
		t.Stop()
		return err
	}
	t.Stop()

	captureOpen = false
	if err := cc.CaptureStop(); err != nil {
		return fmt.Errorf("export: stop capture: %w", err)
	}
	return ValidateCapture(path)
}

// ValidateCapture checks that the capture produced a readable, non-empty
// WAV file.
func ValidateCapture(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("export: open capture: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return fmt.Errorf("export: %s is not a valid wav file", path)
	}
	dur, err := d.Duration()
	if err != nil {
		return fmt.Errorf("export: read capture duration: %w", err)
	}
	if dur <= 0 {
		return fmt.Errorf("export: capture %s is empty", path)
	}
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
