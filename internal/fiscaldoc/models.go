// Package fiscaldoc models the electronic service invoice and its legal
// status transitions. Documents mutate only through the named operations
// here; raw status assignment is how the invariants die.
package fiscaldoc

import (
	"time"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Status is the document's position in the transmission state machine.
type Status string

const (
	StatusDraft        Status = "draft"
	StatusQueued       Status = "queued"
	StatusTransmitting Status = "transmitting"
	StatusAuthorized   Status = "authorized"
	StatusRejected     Status = "rejected"
	StatusError        Status = "error"
	StatusCancelled    Status = "cancelled"
	StatusSubstituted  Status = "substituted"
)

// legalTransitions is the single source of truth for the state machine:
// Draft -> Queued -> Transmitting -> {Authorized, Rejected, Error, Queued};
// Error -> {Queued, Rejected}; Authorized -> {Cancelled, Substituted}.
// Transmitting -> Queued is the claim release: a worker that claimed the
// document but could not start processing puts it back in line.
var legalTransitions = map[Status][]Status{
	StatusDraft:        {StatusQueued},
	StatusQueued:       {StatusTransmitting},
	StatusTransmitting: {StatusAuthorized, StatusRejected, StatusError, StatusQueued},
	StatusError:        {StatusQueued, StatusRejected},
	StatusAuthorized:   {StatusCancelled, StatusSubstituted},
}

// Terminal reports whether no further transmission activity is legal.
// Authorized is terminal for transmission but still accepts cancellation and
// substitution.
func (s Status) Terminal() bool {
	switch s {
	case StatusAuthorized, StatusRejected, StatusCancelled, StatusSubstituted:
		return true
	}
	return false
}

// TaxKind names the withholdings an invoice may carry.
type TaxKind string

const (
	TaxISS    TaxKind = "iss"
	TaxPIS    TaxKind = "pis"
	TaxCOFINS TaxKind = "cofins"
	TaxIR     TaxKind = "ir"
	TaxINSS   TaxKind = "inss"
	TaxCSLL   TaxKind = "csll"
)

// TaxLine is one tax rate/amount pair. Amounts are integer cents, rates in
// basis points, so arithmetic stays exact.
type TaxLine struct {
	Kind            TaxKind
	RateBasisPoints int64
	AmountCents     int64
}

// Amounts holds the computed monetary fields of a document.
type Amounts struct {
	ServiceCents               int64
	UnconditionalDiscountCents int64
	ConditionalDiscountCents   int64
	CalculationBaseCents       int64
	NetCents                   int64
}

// NewAmounts derives the calculation base and net amount, enforcing
// net = service - unconditional - conditional and net >= 0.
func NewAmounts(serviceCents, unconditionalCents, conditionalCents int64) (Amounts, error) {
	if serviceCents < 0 || unconditionalCents < 0 || conditionalCents < 0 {
		return Amounts{}, domerrors.New(domerrors.CodeInvalidInput, "amounts must be non-negative")
	}
	net := serviceCents - unconditionalCents - conditionalCents
	if net < 0 {
		return Amounts{}, domerrors.New(domerrors.CodeInvalidInput,
			"discounts exceed the service amount")
	}
	// The ISS calculation base excludes only the unconditional discount.
	base := serviceCents - unconditionalCents
	return Amounts{
		ServiceCents:               serviceCents,
		UnconditionalDiscountCents: unconditionalCents,
		ConditionalDiscountCents:   conditionalCents,
		CalculationBaseCents:       base,
		NetCents:                   net,
	}, nil
}

// Document is the transmitted service invoice.
type Document struct {
	ID         id.DocumentID
	BusinessID id.BusinessID
	PersonID   id.PersonID

	CityCode id.CityCode
	Series   string
	Number   int64

	IssueDate      time.Time
	CompetenceDate time.Time

	ServiceDescription string
	Taxes              []TaxLine
	Amounts            Amounts

	Status Status

	// Filled by the government on authorization.
	Protocol       string
	DocumentNumber string

	RejectionReason      string
	TransmissionAttempts int

	CancelReason       string
	SubstitutedBy      *id.DocumentID
	SubstitutionReason string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New builds a draft document, validating taxes and amounts.
func New(docID id.DocumentID, businessID id.BusinessID, personID id.PersonID, cityCode id.CityCode, series string, number int64, issueDate, competenceDate time.Time, description string, taxes []TaxLine, amounts Amounts, now time.Time) (*Document, error) {
	if description == "" {
		return nil, domerrors.New(domerrors.CodeInvalidInput, "service description is required")
	}
	for _, t := range taxes {
		if t.AmountCents < 0 || t.RateBasisPoints < 0 {
			return nil, domerrors.Newf(domerrors.CodeInvalidInput, "tax %s must be non-negative", t.Kind)
		}
	}
	return &Document{
		ID:                 docID,
		BusinessID:         businessID,
		PersonID:           personID,
		CityCode:           cityCode,
		Series:             series,
		Number:             number,
		IssueDate:          issueDate,
		CompetenceDate:     competenceDate,
		ServiceDescription: description,
		Taxes:              taxes,
		Amounts:            amounts,
		Status:             StatusDraft,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// transition moves the document to a new status when the state machine
// allows it. Every named operation funnels through here.
func (d *Document) transition(to Status, now time.Time) error {
	for _, legal := range legalTransitions[d.Status] {
		if legal == to {
			d.Status = to
			d.UpdatedAt = now
			return nil
		}
	}
	return domerrors.Newf(domerrors.CodeInvalidStatusTransition,
		"document %s cannot move from %s to %s", d.ID, d.Status, to)
}

// Enqueue marks the document ready for transmission.
func (d *Document) Enqueue(now time.Time) error {
	return d.transition(StatusQueued, now)
}

// BeginTransmission claims the document for one consumer invocation. A
// document already transmitting or in a terminal state is not claimable;
// stores must apply this check atomically.
func (d *Document) BeginTransmission(now time.Time) error {
	return d.transition(StatusTransmitting, now)
}

// Authorize records a successful government response.
func (d *Document) Authorize(protocol, documentNumber string, now time.Time) error {
	if protocol == "" || documentNumber == "" {
		return domerrors.New(domerrors.CodeInvalidInput, "authorization requires protocol and document number")
	}
	if err := d.transition(StatusAuthorized, now); err != nil {
		return err
	}
	d.Protocol = protocol
	d.DocumentNumber = documentNumber
	// A transient-failure reason from an earlier attempt no longer applies.
	d.RejectionReason = ""
	return nil
}

// Reject records a terminal rejection. Legal from Transmitting (business-rule
// rejection) and from Error (retry budget exhausted).
func (d *Document) Reject(reason string, now time.Time) error {
	if err := d.transition(StatusRejected, now); err != nil {
		return err
	}
	d.RejectionReason = reason
	return nil
}

// MarkError records a transient failure and counts the attempt.
func (d *Document) MarkError(reason string, now time.Time) error {
	if err := d.transition(StatusError, now); err != nil {
		return err
	}
	d.RejectionReason = reason
	d.TransmissionAttempts++
	return nil
}

// Requeue puts the document back in line: after a transient error for the
// next attempt, or releasing a claim that could not start processing.
func (d *Document) Requeue(now time.Time) error {
	return d.transition(StatusQueued, now)
}

// Cancel voids an authorized document.
func (d *Document) Cancel(reason string, now time.Time) error {
	if reason == "" {
		return domerrors.New(domerrors.CodeInvalidInput, "cancellation requires a reason")
	}
	if err := d.transition(StatusCancelled, now); err != nil {
		return err
	}
	d.CancelReason = reason
	return nil
}

// Substitute replaces an authorized document with another.
func (d *Document) Substitute(replacement id.DocumentID, reason string, now time.Time) error {
	if replacement.IsNil() {
		return domerrors.New(domerrors.CodeInvalidInput, "substitution requires the replacing document")
	}
	if err := d.transition(StatusSubstituted, now); err != nil {
		return err
	}
	d.SubstitutedBy = &replacement
	d.SubstitutionReason = reason
	return nil
}
