package subindex

import (
	"testing"

	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/subject"
)

func mustTopic(t *testing.T, pattern string) subject.Topic {
	t.Helper()
	top, err := subject.New(pattern)
	if err != nil {
		t.Fatalf("subject.New(%q): %v", pattern, err)
	}
	return top
}

func TestSubscribeIsIdempotent(t *testing.T) {
	idx := New()
	sub := broker.Subscription{ShardID: 0, ConnID: 1, SubID: "1", Topic: mustTopic(t, "foo")}
	idx.Subscribe(sub)
	idx.Subscribe(sub)
	if got := len(idx.SubsMatching("foo")); got != 1 {
		t.Fatalf("expected 1 match after duplicate subscribe, got %d", got)
	}
}

func TestUnsubscribeRemovesFromAllViews(t *testing.T) {
	idx := New()
	sub := broker.Subscription{ShardID: 0, ConnID: 1, SubID: "1", Topic: mustTopic(t, "foo"), Queue: "g"}
	idx.Subscribe(sub)
	idx.Unsubscribe(1, "1")

	if got := len(idx.SubsMatching("foo")); got != 0 {
		t.Errorf("expected 0 non-group matches, got %d", got)
	}
	if got := idx.GroupsMatching("foo"); len(got) != 0 {
		t.Errorf("expected 0 group matches, got %d", len(got))
	}
	if got := idx.SubsOf(1); len(got) != 0 {
		t.Errorf("expected 0 subs for conn 1, got %d", len(got))
	}
}

func TestFanOutExactness(t *testing.T) {
	idx := New()
	for i, shard := range []int{0, 0, 1} {
		idx.Subscribe(broker.Subscription{
			ShardID: shard,
			ConnID:  uint64(i + 1),
			SubID:   "1",
			Topic:   mustTopic(t, "foo.bar"),
		})
	}
	matches := idx.SubsMatching("foo.bar")
	if len(matches) != 3 {
		t.Fatalf("expected 3 matches across shards, got %d", len(matches))
	}
}

func TestGroupsMatchingReturnsFullMembership(t *testing.T) {
	idx := New()
	idx.Subscribe(broker.Subscription{ShardID: 0, ConnID: 1, SubID: "1", Topic: mustTopic(t, "jobs.*"), Queue: "workers"})
	idx.Subscribe(broker.Subscription{ShardID: 1, ConnID: 2, SubID: "1", Topic: mustTopic(t, "jobs.*"), Queue: "workers"})

	groups := idx.GroupsMatching("jobs.x")
	gk := broker.GroupKey{Topic: "jobs.*", Queue: "workers"}
	if len(groups[gk]) != 2 {
		t.Fatalf("expected 2 members in group, got %d", len(groups[gk]))
	}
}
