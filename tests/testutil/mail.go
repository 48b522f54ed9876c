package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/storefront/backend/internal/domain/notification"
)

// MailCatcher records every job handed to it instead of delivering it
type MailCatcher struct {
	mu   sync.Mutex
	sent []*notification.EmailJob
	fail error
}

// Send implements the queue sender
func (m *MailCatcher) Send(_ context.Context, job *notification.EmailJob) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, job)
	return nil
}

// FailWith makes every following Send return err; nil restores delivery
func (m *MailCatcher) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

// Count returns how many emails of template reached to
func (m *MailCatcher) Count(to, template string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, job := range m.sent {
		if job.To == to && job.Template == template {
			n++
		}
	}
	return n
}

// Last returns the template data of the newest matching email
func (m *MailCatcher) Last(to, template string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		job := m.sent[i]
		if job.To == to && job.Template == template {
			return job.Context, nil
		}
	}
	return nil, errors.New("no matching email")
}
