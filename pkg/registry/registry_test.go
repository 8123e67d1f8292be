package registry_test

import (
	"testing"

	"github.com/openfactory/assetstream/pkg/registry"
	"github.com/openfactory/assetstream/pkg/test"
)

type RegistrySuite struct {
	test.Suite
	reg *registry.Registry
}

func (s *RegistrySuite) SetupTest() {
	s.Suite.SetupTest()
	s.reg = registry.New()
}

func (s *RegistrySuite) TestAttachDetach_RemovesEmptyKey() {
	q := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1", q)
	s.Require().Equal(1, s.reg.Len())

	s.reg.Detach("A1", q)
	s.Equal(0, s.reg.Len(), "R2: removing the last queue for a key must remove the key")
}

func (s *RegistrySuite) TestDetach_UnknownQueueIsNoop() {
	q := registry.NewSubscriberQueue(4)
	other := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1", q)

	s.reg.Detach("A1", other)
	s.Equal(1, s.reg.Len())
	s.reg.Detach("unknown-key", q)
	s.Equal(1, s.reg.Len())
}

func (s *RegistrySuite) TestFanout_ExactMatch() {
	a := registry.NewSubscriberQueue(4)
	b := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1", a)
	s.reg.Attach("A2", b)

	snapshot := s.reg.Fanout("A1", registry.MatchExact)
	s.Require().Len(snapshot, 1)
	s.Same(a, snapshot[0])
}

func (s *RegistrySuite) TestFanout_PrefixMatch() {
	byAsset := registry.NewSubscriberQueue(4)
	byItem := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1|", byAsset)
	s.reg.Attach("A1|temp", byItem)

	snapshot := s.reg.Fanout("A1|temp", registry.MatchPrefix)
	s.Len(snapshot, 2, "both the asset-level and item-level prefixes match")

	snapshot = s.reg.Fanout("A1|avail", registry.MatchPrefix)
	s.Len(snapshot, 1, "only the asset-level prefix matches a different item")
}

func (s *RegistrySuite) TestFanout_EmptySnapshotForUnknownKey() {
	s.Empty(s.reg.Fanout("nobody-subscribed", registry.MatchExact))
}

func (s *RegistrySuite) TestFanout_SnapshotIsIndependentOfConcurrentMutation() {
	a := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1", a)

	snapshot := s.reg.Fanout("A1", registry.MatchExact)
	b := registry.NewSubscriberQueue(4)
	s.reg.Attach("A1", b)

	s.Len(snapshot, 1, "snapshot taken before the second attach must not observe it")
}

func (s *RegistrySuite) TestKeys() {
	s.reg.Attach("A1", registry.NewSubscriberQueue(4))
	s.reg.Attach("A2", registry.NewSubscriberQueue(4))
	s.ElementsMatch([]string{"A1", "A2"}, s.reg.Keys())
}

func TestRegistrySuite(t *testing.T) {
	test.Run(t, new(RegistrySuite))
}

func TestSubscriberQueue_TryEnqueueReportsFull(t *testing.T) {
	q := registry.NewSubscriberQueue(1)
	if !q.TryEnqueue([]byte("full")) {
		t.Fatal("expected room in a fresh queue")
	}
	if q.TryEnqueue([]byte("dropped")) {
		t.Fatal("expected the queue to report no room once at capacity")
	}
}
