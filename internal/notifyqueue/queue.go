package notifyqueue

import (
	"context"
	"sync"
	"time"

	"decisionengine/internal/domain"
)

// DecisionSummary is the part of one decision shipped along with its action.
type DecisionSummary struct {
	DecisionID        string              `json:"decision_id"`
	TriggeredRules    []string            `json:"triggered_rules"`
	SuppressedActions []domain.ActionType `json:"suppressed_actions,omitempty"`
}

// Job is one outbound notification task handed to the delivery side.
// Params: action ID as job ID, action payload, and decision summary.
// Returns: queue unit consumed by delivery workers.
type Job struct {
	ID        string          `json:"id"`
	Action    domain.Action   `json:"action"`
	Decision  DecisionSummary `json:"decision"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewJob builds queue job for one persisted decision/action pair.
// Params: decision bundle returned by the recorder.
// Returns: job keyed by action ID.
func NewJob(bundle domain.DecisionBundle) Job {
	return Job{
		ID:     bundle.Action.ActionID,
		Action: bundle.Action,
		Decision: DecisionSummary{
			DecisionID:        bundle.Decision.DecisionID,
			TriggeredRules:    bundle.Decision.TriggeredRules,
			SuppressedActions: bundle.Decision.SuppressedActions,
		},
		CreatedAt: bundle.Action.CreatedAt,
	}
}

// Producer enqueues notification delivery jobs.
// Params: context and queue job payload.
// Returns: enqueue error.
type Producer interface {
	Enqueue(ctx context.Context, job Job) error
	Close() error
}

// MemoryProducer keeps the most recent enqueued jobs in process memory.
type MemoryProducer struct {
	mu    sync.Mutex
	limit int
	jobs  []Job
}

// NewMemoryProducer creates empty in-memory producer.
// Params: maximum retained jobs; oldest are evicted first, <=0 keeps all.
// Returns: producer.
func NewMemoryProducer(limit int) *MemoryProducer {
	return &MemoryProducer{limit: limit}
}

// Enqueue appends job; duplicate IDs are ignored like JetStream dedup.
func (p *MemoryProducer) Enqueue(ctx context.Context, job Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, existing := range p.jobs {
		if job.ID != "" && existing.ID == job.ID {
			return nil
		}
	}
	p.jobs = append(p.jobs, job)
	if p.limit > 0 && len(p.jobs) > p.limit {
		p.jobs = append([]Job(nil), p.jobs[len(p.jobs)-p.limit:]...)
	}
	return nil
}

// Jobs returns enqueued jobs in order.
func (p *MemoryProducer) Jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Job(nil), p.jobs...)
}

// Close is a no-op.
func (p *MemoryProducer) Close() error {
	return nil
}
