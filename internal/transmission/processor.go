package transmission

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/gregoritrentin/prospera-api-sub003/internal/certificate"
	certservice "github.com/gregoritrentin/prospera-api-sub003/internal/certificate/service"
	"github.com/gregoritrentin/prospera-api-sub003/internal/fiscaldoc"
	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/metrics"
	"github.com/gregoritrentin/prospera-api-sub003/internal/provider"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/platform/sentinel"
)

// Certificates is what the processor needs from the certificate lifecycle.
type Certificates interface {
	Installed(ctx context.Context, businessID id.BusinessID) (*certificate.Certificate, error)
	Container(ctx context.Context, cert *certificate.Certificate) ([]byte, error)
}

var _ Certificates = (*certservice.Service)(nil)

// RetryPolicy bounds how transient transmission failures are retried.
type RetryPolicy struct {
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Processor handles one delivered job end to end: claim the document, sign,
// transmit, interpret, persist the outcome. Safe to run on many workers for
// different documents; the store's claim guard keeps a single document from
// being processed twice.
type Processor struct {
	docs         DocumentStore
	certs        Certificates
	registry     *provider.Registry
	transmitters *TransmitterRegistry
	renderer     PayloadRenderer
	signer       Signer
	docRenderer  DocumentRenderer
	translator   Translator
	idem         IdempotencyStore
	metrics      *metrics.Metrics
	log          *slog.Logger
	tracer       trace.Tracer

	env    id.Environment
	policy RetryPolicy
	now    func() time.Time
}

func NewProcessor(docs DocumentStore, certs Certificates, registry *provider.Registry, transmitters *TransmitterRegistry, renderer PayloadRenderer, signer Signer, docRenderer DocumentRenderer, translator Translator, idem IdempotencyStore, m *metrics.Metrics, log *slog.Logger, env id.Environment, policy RetryPolicy) *Processor {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}
	return &Processor{
		docs:         docs,
		certs:        certs,
		registry:     registry,
		transmitters: transmitters,
		renderer:     renderer,
		signer:       signer,
		docRenderer:  docRenderer,
		translator:   translator,
		idem:         idem,
		metrics:      m,
		log:          log,
		tracer:       otel.Tracer("transmission"),
		env:          env,
		policy:       policy,
		now:          time.Now,
	}
}

// Process consumes one job. A nil return means the job is settled: the
// document reached a persisted state, or the delivery was a duplicate and
// there was nothing to do. Errors are reserved for infrastructure failures
// where redelivery is the right move.
func (p *Processor) Process(ctx context.Context, job Job) error {
	ctx, span := p.tracer.Start(ctx, "transmission.process",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("document.id", job.DocumentID.String()),
			attribute.String("business.id", job.BusinessID.String()),
		))
	defer span.End()

	doc, err := p.docs.Claim(ctx, job.DocumentID, p.now())
	if err != nil {
		switch {
		case errors.Is(err, sentinel.ErrInvalidState):
			// Duplicate or stale delivery; someone else owns the document.
			p.log.InfoContext(ctx, "skipping non-claimable document",
				"document_id", job.DocumentID.String())
			return nil
		case errors.Is(err, sentinel.ErrNotFound):
			p.log.WarnContext(ctx, "transmission job references unknown document",
				"document_id", job.DocumentID.String())
			return nil
		}
		span.RecordError(err)
		return err
	}

	prep, err := p.prepare(ctx, doc, job.Language)
	if err != nil {
		if domerrors.Retryable(err) {
			// Infrastructure blip (provider lookup, blob fetch). Release the
			// claim and let the uncommitted offset redeliver the job; the
			// idempotency key stays so no second job is published.
			if relErr := p.releaseClaim(ctx, doc); relErr != nil {
				span.RecordError(relErr)
				return relErr
			}
			span.RecordError(err)
			p.log.WarnContext(ctx, "preparation failed, claim released for redelivery",
				"document_id", doc.ID.String(), "error", err.Error())
			return err
		}
		// A missing certificate or provider will not fix itself by
		// retrying the same job.
		return p.reject(ctx, doc, err.Error())
	}

	return p.transmit(ctx, doc, prep, job.Language)
}

type prepared struct {
	transmitter Transmitter
	request     Request
	providerTag string
	timeout     time.Duration
}

func (p *Processor) prepare(ctx context.Context, doc *fiscaldoc.Document, language string) (*prepared, error) {
	cert, err := p.certs.Installed(ctx, doc.BusinessID)
	if err != nil {
		return nil, err
	}
	if cert.ExpiredAt(p.now()) {
		return nil, domerrors.New(domerrors.CodeCertificateValidationFailed,
			p.translator.Translate("transmission.certificate_expired", language, nil))
	}

	cfg, err := p.registry.FindByCityCode(ctx, doc.CityCode)
	if err != nil {
		return nil, err
	}
	endpoint, err := p.registry.ResolveEndpoint(cfg, p.env)
	if err != nil {
		return nil, err
	}
	transmitter, err := p.transmitters.For(cfg.Provider)
	if err != nil {
		return nil, err
	}

	payload, err := p.renderer.Render(ctx, doc, cfg)
	if err != nil {
		return nil, err
	}
	container, err := p.certs.Container(ctx, cert)
	if err != nil {
		return nil, err
	}
	signature, err := p.signer.Sign(payload, container, cert.ContainerPassword)
	if err != nil {
		return nil, err
	}

	return &prepared{
		transmitter: transmitter,
		request: Request{
			Endpoint:   endpoint,
			Payload:    payload,
			Signature:  signature,
			Thumbprint: cert.Thumbprint,
			Extensions: cfg.Extensions,
		},
		providerTag: cfg.Provider,
		timeout:     cfg.Timeout,
	}, nil
}

// transmit calls the endpoint, retrying the transient failure class with
// exponential backoff until the attempt budget runs out.
func (p *Processor) transmit(ctx context.Context, doc *fiscaldoc.Document, prep *prepared, language string) error {
	bo := backoff.NewExponentialBackOff()
	if p.policy.BackoffBase > 0 {
		bo.InitialInterval = p.policy.BackoffBase
	}
	if p.policy.BackoffMax > 0 {
		bo.MaxInterval = p.policy.BackoffMax
	}
	bo.MaxElapsedTime = 0
	bo.Reset()

	for {
		result, err := p.callEndpoint(ctx, prep)
		if err == nil {
			if result.Rejected {
				return p.rejectFinal(ctx, doc, result.RejectionReason)
			}
			return p.authorize(ctx, doc, result)
		}

		if !domerrors.Retryable(err) {
			// The gateway refused the submission outright; the same payload
			// cannot succeed on a retry.
			return p.rejectFinal(ctx, doc, err.Error())
		}

		// Transient failure: timeout, connection refused, 5xx-equivalent.
		if markErr := doc.MarkError(err.Error(), p.now()); markErr != nil {
			return markErr
		}
		if saveErr := p.docs.Save(ctx, doc); saveErr != nil {
			return saveErr
		}

		if doc.TransmissionAttempts >= p.policy.MaxAttempts {
			reason := p.translator.Translate("transmission.failed", language,
				map[string]string{"attempts": strconv.Itoa(doc.TransmissionAttempts)})
			p.metrics.DocumentsTransmitted.WithLabelValues("failed").Inc()
			return p.rejectPersisted(ctx, doc, reason)
		}

		p.metrics.TransmissionRetries.Inc()
		p.log.WarnContext(ctx, "transient transmission failure, will retry",
			"document_id", doc.ID.String(),
			"attempt", doc.TransmissionAttempts,
			"error", err.Error())

		if waitErr := sleep(ctx, bo.NextBackOff()); waitErr != nil {
			// Shutting down mid-retry: the document stays in Error and a
			// later enqueue picks it up again.
			return waitErr
		}

		// Error -> Queued -> Transmitting for the next attempt.
		if err := doc.Requeue(p.now()); err != nil {
			return err
		}
		if err := doc.BeginTransmission(p.now()); err != nil {
			return err
		}
		if err := p.docs.Save(ctx, doc); err != nil {
			return err
		}
	}
}

func (p *Processor) callEndpoint(ctx context.Context, prep *prepared) (*Result, error) {
	timeout := prep.timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := p.now()
	result, err := prep.transmitter.Transmit(callCtx, prep.request)
	p.metrics.ObserveEndpoint(prep.providerTag, time.Since(start))
	if err != nil && errors.Is(err, context.DeadlineExceeded) {
		err = domerrors.Wrap(domerrors.CodeTransmissionTimeout, "endpoint call timed out", err)
	}
	return result, err
}

// releaseClaim puts a claimed document back in Queued when processing could
// not start.
func (p *Processor) releaseClaim(ctx context.Context, doc *fiscaldoc.Document) error {
	if err := doc.Requeue(p.now()); err != nil {
		return err
	}
	return p.docs.Save(ctx, doc)
}

func (p *Processor) authorize(ctx context.Context, doc *fiscaldoc.Document, result *Result) error {
	if err := doc.Authorize(result.Protocol, result.DocumentNumber, p.now()); err != nil {
		return err
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return err
	}
	_ = p.idem.Clear(ctx, doc.ID)
	p.metrics.DocumentsTransmitted.WithLabelValues("authorized").Inc()

	if fileID, err := p.docRenderer.RenderAuthorized(ctx, doc); err != nil {
		// The rendition is a convenience artifact; authorization stands.
		p.log.WarnContext(ctx, "rendition generation failed",
			"document_id", doc.ID.String(), "error", err.Error())
	} else {
		p.log.InfoContext(ctx, "document authorized",
			"document_id", doc.ID.String(), "protocol", doc.Protocol, "rendition", fileID)
	}
	return nil
}

// reject settles a document whose preparation failed.
func (p *Processor) reject(ctx context.Context, doc *fiscaldoc.Document, reason string) error {
	p.metrics.DocumentsTransmitted.WithLabelValues("rejected").Inc()
	return p.rejectPersisted(ctx, doc, reason)
}

// rejectFinal settles a terminal business-rule rejection from the endpoint.
func (p *Processor) rejectFinal(ctx context.Context, doc *fiscaldoc.Document, reason string) error {
	p.metrics.DocumentsTransmitted.WithLabelValues("rejected").Inc()
	return p.rejectPersisted(ctx, doc, reason)
}

func (p *Processor) rejectPersisted(ctx context.Context, doc *fiscaldoc.Document, reason string) error {
	if err := doc.Reject(reason, p.now()); err != nil {
		return err
	}
	if err := p.docs.Save(ctx, doc); err != nil {
		return err
	}
	_ = p.idem.Clear(ctx, doc.ID)
	p.log.InfoContext(ctx, "document rejected",
		"document_id", doc.ID.String(), "reason", reason)
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
