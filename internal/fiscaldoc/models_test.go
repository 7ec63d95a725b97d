package fiscaldoc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	domerrors "github.com/gregoritrentin/prospera-api-sub003/pkg/domerrors"
)

// Status transitions and amount arithmetic are load-bearing invariants:
// every transmission path in the worker leans on them, so they get enforced
// here directly rather than through pipeline tests.
type DocumentSuite struct {
	suite.Suite
	now time.Time
}

func (s *DocumentSuite) SetupTest() {
	s.now = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func TestDocumentSuite(t *testing.T) {
	suite.Run(t, new(DocumentSuite))
}

func (s *DocumentSuite) newDraft() *Document {
	amounts, err := NewAmounts(100_00, 10_00, 5_00)
	s.Require().NoError(err)

	city, err := id.ParseCityCode("3550308")
	s.Require().NoError(err)

	doc, err := New(
		id.NewDocumentID(),
		id.NewBusinessID(),
		id.NewPersonID(),
		city,
		"A", 42,
		s.now, s.now,
		"consultoria em engenharia",
		[]TaxLine{{Kind: TaxISS, RateBasisPoints: 200, AmountCents: 1_80}},
		amounts,
		s.now,
	)
	s.Require().NoError(err)
	return doc
}

// TestAmounts tests derivation of calculation base and net amount.
func (s *DocumentSuite) TestAmounts() {
	s.Run("base excludes only the unconditional discount", func() {
		amounts, err := NewAmounts(100_00, 10_00, 5_00)
		s.Require().NoError(err)
		s.Equal(int64(90_00), amounts.CalculationBaseCents)
		s.Equal(int64(85_00), amounts.NetCents)
	})

	s.Run("zero discounts leave base and net at the service amount", func() {
		amounts, err := NewAmounts(250_00, 0, 0)
		s.Require().NoError(err)
		s.Equal(int64(250_00), amounts.CalculationBaseCents)
		s.Equal(int64(250_00), amounts.NetCents)
	})

	s.Run("discounts exceeding the service amount are rejected", func() {
		_, err := NewAmounts(100_00, 60_00, 50_00)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})

	s.Run("negative inputs are rejected", func() {
		_, err := NewAmounts(-1, 0, 0)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})
}

// TestLifecycle walks the happy transmission path end to end.
func (s *DocumentSuite) TestLifecycle() {
	doc := s.newDraft()
	s.Equal(StatusDraft, doc.Status)

	s.Require().NoError(doc.Enqueue(s.now))
	s.Equal(StatusQueued, doc.Status)

	s.Require().NoError(doc.BeginTransmission(s.now))
	s.Equal(StatusTransmitting, doc.Status)

	s.Require().NoError(doc.Authorize("PROT-123", "2026/000042", s.now))
	s.Equal(StatusAuthorized, doc.Status)
	s.Equal("PROT-123", doc.Protocol)
	s.Equal("2026/000042", doc.DocumentNumber)
	s.True(doc.Status.Terminal())
}

// TestIllegalTransitions pins down the moves the state machine must refuse.
func (s *DocumentSuite) TestIllegalTransitions() {
	s.Run("draft cannot begin transmission without enqueueing", func() {
		doc := s.newDraft()
		err := doc.BeginTransmission(s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidStatusTransition))
		s.Equal(StatusDraft, doc.Status)
	})

	s.Run("rejected document accepts nothing further", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.Reject("código de serviço inválido", s.now))

		s.Error(doc.Enqueue(s.now))
		s.Error(doc.Authorize("P", "N", s.now))
		s.Error(doc.Cancel("any", s.now))
		s.Equal(StatusRejected, doc.Status)
	})

	s.Run("authorized document cannot be re-transmitted", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.Authorize("PROT", "NUM", s.now))

		err := doc.Enqueue(s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidStatusTransition))
	})

	s.Run("only authorized documents can be cancelled", func() {
		doc := s.newDraft()
		err := doc.Cancel("emitida por engano", s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidStatusTransition))
	})
}

// TestErrorRecovery covers the transient-failure loop: error, requeue, retry.
func (s *DocumentSuite) TestErrorRecovery() {
	s.Run("errored document can requeue and counts attempts", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.MarkError("gateway timeout", s.now))
		s.Equal(1, doc.TransmissionAttempts)
		s.Equal("gateway timeout", doc.RejectionReason)

		s.Require().NoError(doc.Requeue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.MarkError("gateway timeout", s.now))
		s.Equal(2, doc.TransmissionAttempts)
	})

	s.Run("errored document can be rejected when the budget is spent", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.MarkError("gateway timeout", s.now))

		s.Require().NoError(doc.Reject("transmissão falhou após 3 tentativas", s.now))
		s.Equal(StatusRejected, doc.Status)
	})

	s.Run("claimed document can be released back to the queue", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))

		s.Require().NoError(doc.Requeue(s.now))
		s.Equal(StatusQueued, doc.Status)
		s.Zero(doc.TransmissionAttempts)

		s.Require().NoError(doc.BeginTransmission(s.now))
	})

	s.Run("authorization after a transient failure clears the stale reason", func() {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.MarkError("gateway timeout", s.now))
		s.Require().NoError(doc.Requeue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))

		s.Require().NoError(doc.Authorize("PROT", "NUM", s.now))
		s.Empty(doc.RejectionReason)
	})
}

// TestPostAuthorization covers cancellation and substitution of authorized
// documents.
func (s *DocumentSuite) TestPostAuthorization() {
	authorized := func() *Document {
		doc := s.newDraft()
		s.Require().NoError(doc.Enqueue(s.now))
		s.Require().NoError(doc.BeginTransmission(s.now))
		s.Require().NoError(doc.Authorize("PROT", "NUM", s.now))
		return doc
	}

	s.Run("cancellation requires a reason", func() {
		doc := authorized()
		err := doc.Cancel("", s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
		s.Equal(StatusAuthorized, doc.Status)
	})

	s.Run("cancellation records the reason", func() {
		doc := authorized()
		s.Require().NoError(doc.Cancel("valor incorreto", s.now))
		s.Equal(StatusCancelled, doc.Status)
		s.Equal("valor incorreto", doc.CancelReason)
	})

	s.Run("substitution links the replacing document", func() {
		doc := authorized()
		replacement := id.NewDocumentID()
		s.Require().NoError(doc.Substitute(replacement, "correção de alíquota", s.now))
		s.Equal(StatusSubstituted, doc.Status)
		s.Require().NotNil(doc.SubstitutedBy)
		s.Equal(replacement, *doc.SubstitutedBy)
	})

	s.Run("substitution requires the replacing document id", func() {
		doc := authorized()
		err := doc.Substitute(id.DocumentID{}, "correção", s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})
}

// TestNewValidation covers draft construction guards.
func (s *DocumentSuite) TestNewValidation() {
	s.Run("description is required", func() {
		amounts, err := NewAmounts(100_00, 0, 0)
		s.Require().NoError(err)
		city, err := id.ParseCityCode("3550308")
		s.Require().NoError(err)

		_, err = New(id.NewDocumentID(), id.BusinessID{}, id.PersonID{}, city,
			"A", 1, s.now, s.now, "", nil, amounts, s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})

	s.Run("negative tax lines are rejected", func() {
		amounts, err := NewAmounts(100_00, 0, 0)
		s.Require().NoError(err)
		city, err := id.ParseCityCode("3550308")
		s.Require().NoError(err)

		_, err = New(id.NewDocumentID(), id.BusinessID{}, id.PersonID{}, city,
			"A", 1, s.now, s.now, "serviço",
			[]TaxLine{{Kind: TaxPIS, RateBasisPoints: -1, AmountCents: 0}},
			amounts, s.now)
		s.Require().Error(err)
		s.True(domerrors.HasCode(err, domerrors.CodeInvalidInput))
	})
}
