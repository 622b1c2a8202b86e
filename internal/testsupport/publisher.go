package testsupport

import "sync"

// PublishedEvent is one call to RecordingPublisher.PublishEvent.
type PublishedEvent struct {
	Subject string
	Payload any
}

// RecordingPublisher remembers published events. Err is returned from every
// publish after recording.
type RecordingPublisher struct {
	mu     sync.Mutex
	events []PublishedEvent
	Err    error
}

func (p *RecordingPublisher) PublishEvent(subject string, payload any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, PublishedEvent{Subject: subject, Payload: payload})
	return p.Err
}

func (p *RecordingPublisher) Events() []PublishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]PublishedEvent(nil), p.events...)
}

// Subjects returns the subjects in publish order.
func (p *RecordingPublisher) Subjects() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Subject)
	}
	return out
}
