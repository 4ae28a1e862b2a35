package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	id "roster/pkg/domain"
	audit "roster/pkg/platform/audit"
	"roster/pkg/platform/audit/store/memory"
)

type scriptedFetcher struct {
	batches [][]*kgo.Record
	cancel  context.CancelFunc
	commits int
}

func (f *scriptedFetcher) PollFetches(_ context.Context) kgo.Fetches {
	if len(f.batches) == 0 {
		f.cancel()
		return kgo.Fetches{}
	}
	batch := f.batches[0]
	f.batches = f.batches[1:]
	return kgo.Fetches{{Topics: []kgo.FetchTopic{{
		Topic:      "roster.audit",
		Partitions: []kgo.FetchPartition{{Partition: 0, Records: batch}},
	}}}}
}

func (f *scriptedFetcher) CommitUncommittedOffsets(context.Context) error {
	f.commits++
	return nil
}

type failingStore struct{ calls int }

func (s *failingStore) Append(context.Context, audit.Event) error {
	s.calls++
	return errors.New("db down")
}

type ProjectorSuite struct {
	suite.Suite
	eventID id.EventID
	store   *memory.InMemoryStore
}

func TestProjectorSuite(t *testing.T) {
	suite.Run(t, new(ProjectorSuite))
}

func (s *ProjectorSuite) SetupTest() {
	s.eventID = id.NewEventID()
	s.store = memory.NewInMemoryStore()
}

func (s *ProjectorSuite) record(action audit.AuditEvent) *kgo.Record {
	payload, err := json.Marshal(audit.Event{EventID: s.eventID, Action: string(action)})
	s.Require().NoError(err)
	return &kgo.Record{Topic: "roster.audit", Key: []byte(s.eventID.String()), Value: payload}
}

func (s *ProjectorSuite) TestRunProjectsUntilCancelled() {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &scriptedFetcher{
		batches: [][]*kgo.Record{
			{s.record(audit.EventRegistered), s.record(audit.EventWaiverSigned)},
			{s.record(audit.EventUnregistered)},
		},
		cancel: cancel,
	}

	err := NewProjector(fetcher, s.store).Run(ctx)
	s.Require().NoError(err)

	trail, err := s.store.ListByEvent(context.Background(), s.eventID)
	s.Require().NoError(err)
	s.Require().Len(trail, 3)
	s.Equal(string(audit.EventRegistered), trail[0].Action)
	s.Equal(string(audit.EventUnregistered), trail[2].Action)
	s.Equal(2, fetcher.commits)
}

func (s *ProjectorSuite) TestMalformedRecordIsSkipped() {
	fetcher := &scriptedFetcher{}
	p := NewProjector(fetcher, s.store)

	p.Project(context.Background(), []*kgo.Record{
		{Value: []byte("{not json")},
		s.record(audit.EventReconciled),
	})

	trail, err := s.store.ListByEvent(context.Background(), s.eventID)
	s.Require().NoError(err)
	s.Len(trail, 1)
	s.Equal(1, fetcher.commits)
}

func (s *ProjectorSuite) TestStoreFailureIsRetriedThenDropped() {
	fetcher := &scriptedFetcher{}
	store := &failingStore{}
	p := NewProjector(fetcher, store, WithRetry(2, 0))

	p.Project(context.Background(), []*kgo.Record{s.record(audit.EventRegistered)})

	s.Equal(3, store.calls)
	s.Equal(1, fetcher.commits)
}

func (s *ProjectorSuite) TestEmptyBatchDoesNotCommit() {
	fetcher := &scriptedFetcher{}
	NewProjector(fetcher, s.store).Project(context.Background(), nil)
	s.Zero(fetcher.commits)
}
