//go:build nocgo
// +build nocgo

package audio

import (
	"errors"
	"time"
)

// OtoSink stub for builds without audio support.
type OtoSink struct{}

func NewOtoSink(sampleRate, channels int, volume float64) (*OtoSink, error) {
	return nil, errors.New("audio output not available in nocgo build")
}

func (s *OtoSink) Write(samples []byte) error { return errors.New("audio not available") }
func (s *OtoSink) Elapsed() time.Duration     { return 0 }
func (s *OtoSink) Pause() error               { return nil }
func (s *OtoSink) Resume() error              { return nil }
func (s *OtoSink) Stop() error                { return nil }
