package transmission

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	"github.com/gregoritrentin/prospera-api-sub003/internal/provider"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// DocumentStore is what the pipeline needs from document persistence. Claim
// must be atomic: exactly one caller may move a queued document to
// Transmitting.
type DocumentStore interface {
	Save(ctx context.Context, doc *fiscaldoc.Document) error
	Get(ctx context.Context, docID id.DocumentID) (*fiscaldoc.Document, error)
	Claim(ctx context.Context, docID id.DocumentID, now time.Time) (*fiscaldoc.Document, error)
}

// Queue publishes transmission jobs. Backed by Kafka in production and by a
// channel in tests.
type Queue interface {
	Publish(ctx context.Context, job Job) error
}

// Producer enqueues documents for transmission. Fire-and-forget for the
// caller: the returned job id is for observability, not for tracking
// completion.
type Producer struct {
	docs     DocumentStore
	registry *provider.Registry
	idem     IdempotencyStore
	queue    Queue
	ttl      time.Duration
	log      *slog.Logger
	now      func() time.Time
}

func NewProducer(docs DocumentStore, registry *provider.Registry, idem IdempotencyStore, queue Queue, idempotencyTTL time.Duration, log *slog.Logger) *Producer {
	return &Producer{
		docs:     docs,
		registry: registry,
		idem:     idem,
		queue:    queue,
		ttl:      idempotencyTTL,
		log:      log,
		now:      time.Now,
	}
}

// Enqueue validates the document, moves it to Queued, and publishes exactly
// one job per document. Re-enqueueing a document that is already queued or
// in flight returns the owning job without a second submission.
func (p *Producer) Enqueue(ctx context.Context, docID id.DocumentID, businessID id.BusinessID, language string) (id.JobID, error) {
	doc, err := p.docs.Get(ctx, docID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return id.JobID{}, domerrors.Newf(domerrors.CodeResourceNotFound, "document %s not found", docID)
		}
		return id.JobID{}, domerrors.Wrap(domerrors.CodeInternal, "load document", err)
	}
	if doc.BusinessID != businessID {
		return id.JobID{}, domerrors.Newf(domerrors.CodeNotAllowed,
			"document %s does not belong to business %s", docID, businessID)
	}

	// A city without configuration fails here, before any job exists.
	if _, err := p.registry.FindByCityCode(ctx, doc.CityCode); err != nil {
		return id.JobID{}, err
	}

	switch doc.Status {
	case fiscaldoc.StatusDraft:
		if err := doc.Enqueue(p.now()); err != nil {
			return id.JobID{}, err
		}
		if err := p.docs.Save(ctx, doc); err != nil {
			return id.JobID{}, domerrors.Wrap(domerrors.CodeInternal, "persist queued document", err)
		}
	case fiscaldoc.StatusError:
		// Stranded mid-retry (worker shutdown during backoff). Put it back
		// in Queued first so the consumer can claim the job we publish.
		if err := doc.Requeue(p.now()); err != nil {
			return id.JobID{}, err
		}
		if err := p.docs.Save(ctx, doc); err != nil {
			return id.JobID{}, domerrors.Wrap(domerrors.CodeInternal, "persist requeued document", err)
		}
	case fiscaldoc.StatusQueued, fiscaldoc.StatusTransmitting:
		// Already owned by a job; fall through to the idempotency claim so
		// the caller gets the existing job id.
	default:
		return id.JobID{}, domerrors.Newf(domerrors.CodeInvalidStatusTransition,
			"document %s is %s and cannot be enqueued", docID, doc.Status)
	}

	jobID := id.NewJobID()
	owner, created, err := p.idem.Begin(ctx, docID, jobID, p.ttl)
	if err != nil {
		return id.JobID{}, domerrors.Wrap(domerrors.CodeInternal, "claim idempotency key", err)
	}
	if !created {
		p.log.InfoContext(ctx, "document already enqueued",
			"document_id", docID.String(), "job_id", owner.String())
		return owner, nil
	}

	job := Job{JobID: jobID, DocumentID: docID, BusinessID: businessID, Language: language}
	if err := p.queue.Publish(ctx, job); err != nil {
		// Roll the claim back so a later enqueue can retry.
		_ = p.idem.Clear(ctx, docID)
		return id.JobID{}, domerrors.Wrap(domerrors.CodeInternal, "publish transmission job", err)
	}

	p.log.InfoContext(ctx, "document enqueued for transmission",
		"document_id", docID.String(), "job_id", jobID.String(), "city_code", doc.CityCode.String())
	return jobID, nil
}
