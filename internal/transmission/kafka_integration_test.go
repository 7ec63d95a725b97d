//go:build integration

package transmission_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/gregoritrentin/prospera-api-sub003/internal/platform/config"
	platformkafka "github.com/gregoritrentin/prospera-api-sub003/internal/platform/kafka"
	"github.com/gregoritrentin/prospera-api-sub003/internal/transmission"
	id "github.com/gregoritrentin/prospera-api-sub003/pkg/domain"
	"github.com/gregoritrentin/prospera-api-sub003/pkg/testutil/containers"
)

// One job in, the same job out: the queue round trip against a real broker,
// including the document-id partition key retries depend on.
type KafkaQueueSuite struct {
	suite.Suite
	broker *containers.RedpandaContainer
}

func TestKafkaQueueSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaQueueSuite))
}

func (s *KafkaQueueSuite) SetupSuite() {
	s.broker = containers.NewRedpandaContainer(s.T())
}

func (s *KafkaQueueSuite) TestPublishAndConsume() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	const topic = "fiscal.transmission.test"

	producer := s.broker.NewClient(s.T())
	s.Require().NoError(platformkafka.EnsureTopic(ctx, producer, config.KafkaConfig{
		Topic:       topic,
		Partitions:  1,
		Replication: 1,
	}))

	queue := transmission.NewKafkaQueue(producer, topic)
	job := transmission.Job{
		JobID:      id.NewJobID(),
		DocumentID: id.NewDocumentID(),
		BusinessID: id.NewBusinessID(),
		Language:   "pt-BR",
	}
	s.Require().NoError(queue.Publish(ctx, job))

	consumer := s.broker.NewClient(s.T(),
		kgo.ConsumerGroup("fiscal-test"),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)

	fetches := consumer.PollFetches(ctx)
	s.Require().NoError(fetches.Err())

	records := fetches.Records()
	s.Require().Len(records, 1)
	s.Equal(job.DocumentID.String(), string(records[0].Key))

	decoded, err := transmission.DecodeJob(records[0].Value)
	s.Require().NoError(err)
	s.Equal(job, decoded)
}
