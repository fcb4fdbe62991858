// Package events publishes job lifecycle changes to NATS so other services
// can react to finished archives without polling.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/zipbuilder/internal/server/models"
	"github.com/nats-io/nats.go"
)

// Conn is the publishing half of *nats.Conn.
type Conn interface {
	Publish(subj string, data []byte) error
}

// JobEvent is the message body. It mirrors the job record at the moment
// the transition was persisted.
type JobEvent struct {
	TaskKey     string           `json:"task_key"`
	TaskID      string           `json:"task_id"`
	ManifestURL string           `json:"manifest_url"`
	Status      models.Status    `json:"status"`
	Result      string           `json:"result,omitempty"`
	Error       string           `json:"error,omitempty"`
	Retries     int              `json:"retries"`
	Progress    *models.Progress `json:"progress,omitempty"`
	Stats       *models.Stats    `json:"stats,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// NATSNotifier publishes every transition on "<subject>.<status>".
type NATSNotifier struct {
	conn    Conn
	subject string
	close   func()
	now     func() time.Time
}

// Connect dials url and returns a notifier publishing under subject.
func Connect(url, subject string) (*NATSNotifier, error) {
	nc, err := nats.Connect(url, nats.Name("zipbuilder"), nats.MaxReconnects(-1))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	n := New(nc, subject)
	n.close = func() {
		_ = nc.Drain()
	}
	return n, nil
}

// New wraps an existing connection.
func New(conn Conn, subject string) *NATSNotifier {
	return &NATSNotifier{conn: conn, subject: subject, now: time.Now}
}

// Subject returns the subject a job in status is published on.
func (n *NATSNotifier) Subject(status models.Status) string {
	return n.subject + "." + string(status)
}

func (n *NATSNotifier) Notify(ctx context.Context, job *models.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(JobEvent{
		TaskKey:     job.TaskKey,
		TaskID:      job.TaskID,
		ManifestURL: job.ManifestURL,
		Status:      job.Status,
		Result:      job.Result,
		Error:       job.Error,
		Retries:     job.Retries,
		Progress:    job.Progress,
		Stats:       job.Stats,
		Timestamp:   n.now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := n.conn.Publish(n.Subject(job.Status), data); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}

// Close drains the connection opened by Connect.
func (n *NATSNotifier) Close() {
	if n.close != nil {
		n.close()
	}
}
