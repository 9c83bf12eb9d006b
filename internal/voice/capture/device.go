package capture

import (
	"context"
	"fmt"
	"sync"

	"voiceid/pkg/platform/sentinel"
)

// AudioDevice grants exclusive access to a live audio input.
type AudioDevice interface {
	Acquire(ctx context.Context) (AudioStream, error)
}

// AudioStream delivers captured chunks to subscribers until closed.
// Close releases the device and must be called exactly once by the owner.
type AudioStream interface {
	OnData(fn func(chunk []byte)) (unsubscribe func())
	Close() error
}

// PushDevice is an AudioDevice fed by an external producer, such as chunks
// uploaded over HTTP while a recording is open. One stream at a time.
type PushDevice struct {
	mu     sync.Mutex
	stream *pushStream
	denied bool
}

func NewPushDevice() *PushDevice {
	return &PushDevice{}
}

// Deny makes every later Acquire fail, like a revoked microphone permission.
func (d *PushDevice) Deny() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.denied = true
}

func (d *PushDevice) Acquire(ctx context.Context) (AudioStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.denied {
		return nil, fmt.Errorf("audio input permission denied: %w", sentinel.ErrUnavailable)
	}
	if d.stream != nil {
		return nil, fmt.Errorf("audio input already in use: %w", sentinel.ErrUnavailable)
	}
	d.stream = &pushStream{device: d, listeners: make(map[int]func([]byte))}
	return d.stream, nil
}

// Push delivers a chunk to the open stream's subscribers.
func (d *PushDevice) Push(chunk []byte) error {
	d.mu.Lock()
	stream := d.stream
	d.mu.Unlock()
	if stream == nil {
		return fmt.Errorf("no open audio stream: %w", sentinel.ErrInvalidState)
	}
	stream.deliver(chunk)
	return nil
}

// InUse reports whether a stream currently holds the device.
func (d *PushDevice) InUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stream != nil
}

type pushStream struct {
	device *PushDevice

	mu        sync.Mutex
	nextID    int
	listeners map[int]func([]byte)
	closed    bool
}

func (s *pushStream) OnData(fn func([]byte)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *pushStream) deliver(chunk []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	fns := make([]func([]byte), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(chunk)
	}
}

func (s *pushStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("audio stream already closed: %w", sentinel.ErrInvalidState)
	}
	s.closed = true
	s.listeners = nil
	s.mu.Unlock()

	s.device.mu.Lock()
	if s.device.stream == s {
		s.device.stream = nil
	}
	s.device.mu.Unlock()
	return nil
}
