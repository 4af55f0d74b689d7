//go:build integration

package events_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"bordereau/internal/events"
	"bordereau/internal/signature"
	"bordereau/pkg/testutil/containers"
)

type KafkaPublisherSuite struct {
	suite.Suite
	redpanda  *containers.RedpandaContainer
	publisher *events.KafkaPublisher
}

func TestKafkaPublisherSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(KafkaPublisherSuite))
}

func (s *KafkaPublisherSuite) SetupSuite() {
	s.redpanda = containers.GetManager().GetRedpanda(s.T())
	p, err := events.NewKafkaPublisher(s.redpanda.Brokers, events.WithTopic("signatures-it"))
	s.Require().NoError(err)
	s.publisher = p

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1))
	// a second call finds the topic in place
	s.Require().NoError(s.publisher.EnsureTopic(ctx, 1, 1))
}

func (s *KafkaPublisherSuite) TearDownSuite() {
	if s.publisher != nil {
		s.publisher.Close()
	}
}

func (s *KafkaPublisherSuite) TestPublishSignature() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	event := events.NewSignatureRecorded("BSPAOH", "PAOH-42", signature.Reception,
		signature.Record{Author: "Crématorium du Parc", Date: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}, 5)
	s.Require().NoError(s.publisher.PublishSignature(ctx, event))

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics("signatures-it"),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	var got []*kgo.Record
	for len(got) == 0 && ctx.Err() == nil {
		fetches := consumer.PollFetches(ctx)
		s.Require().Empty(fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			got = append(got, r)
		})
	}
	s.Require().Len(got, 1)
	s.Equal("PAOH-42", string(got[0].Key))

	var decoded events.SignatureRecorded
	s.Require().NoError(json.Unmarshal(got[0].Value, &decoded))
	s.Equal(event.ID, decoded.ID)
	s.Equal(signature.Reception, decoded.Stage)
	s.Equal(5, decoded.Version)
}
