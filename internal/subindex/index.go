// Package subindex implements the per-shard subscription index (C5):
// subscribe/unsubscribe plus pattern and queue-group lookups used by the
// shard worker and router to route a publication to every matching
// subscriber exactly once.
//
// Every shard's Index receives a Subscribe/Unsubscribe broadcast for every
// subscription created anywhere in the fleet (SPEC_FULL.md §4.5/§9), so a
// single full record per subscription doubles as both the "local dispatch"
// view (filter by ShardID == this shard) and the "cross-shard summary" view
// (distinct ShardIDs among matches) spec §4.4 calls out separately, so this
// repository collapses them into one structure instead of maintaining two.
package subindex

import (
	"github.com/adred-codev/shardmq/internal/broker"
	"github.com/adred-codev/shardmq/internal/subject"
)

// Index is NOT safe for concurrent use: it is exclusively owned by one
// shard's single goroutine, per spec §5's "no shared mutable state" rule.
type Index struct {
	subs      map[broker.SubKey]broker.Subscription
	byPattern map[string]map[broker.SubKey]struct{}
	byGroup   map[broker.GroupKey]map[broker.SubKey]struct{}
	byConn    map[uint64]map[broker.SubKey]struct{}
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		subs:      make(map[broker.SubKey]broker.Subscription),
		byPattern: make(map[string]map[broker.SubKey]struct{}),
		byGroup:   make(map[broker.GroupKey]map[broker.SubKey]struct{}),
		byConn:    make(map[uint64]map[broker.SubKey]struct{}),
	}
}

// Subscribe is idempotent on (ConnID, SubID): re-subscribing the same
// identity is a no-op, per spec §4.4's invariant.
func (idx *Index) Subscribe(sub broker.Subscription) {
	key := sub.Key()
	if _, exists := idx.subs[key]; exists {
		return
	}
	idx.subs[key] = sub

	pattern := sub.Topic.String()
	if idx.byPattern[pattern] == nil {
		idx.byPattern[pattern] = make(map[broker.SubKey]struct{})
	}
	idx.byPattern[pattern][key] = struct{}{}

	if sub.HasQueue() {
		gk := broker.GroupKey{Topic: pattern, Queue: sub.Queue}
		if idx.byGroup[gk] == nil {
			idx.byGroup[gk] = make(map[broker.SubKey]struct{})
		}
		idx.byGroup[gk][key] = struct{}{}
	}

	if idx.byConn[sub.ConnID] == nil {
		idx.byConn[sub.ConnID] = make(map[broker.SubKey]struct{})
	}
	idx.byConn[sub.ConnID][key] = struct{}{}
}

// Unsubscribe removes (connID, subID) from every view atomically.
func (idx *Index) Unsubscribe(connID uint64, subID string) {
	key := broker.SubKey{ConnID: connID, SubID: subID}
	sub, ok := idx.subs[key]
	if !ok {
		return
	}
	delete(idx.subs, key)

	pattern := sub.Topic.String()
	if set := idx.byPattern[pattern]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(idx.byPattern, pattern)
		}
	}

	if sub.HasQueue() {
		gk := broker.GroupKey{Topic: pattern, Queue: sub.Queue}
		if set := idx.byGroup[gk]; set != nil {
			delete(set, key)
			if len(set) == 0 {
				delete(idx.byGroup, gk)
			}
		}
	}

	if set := idx.byConn[connID]; set != nil {
		delete(set, key)
		if len(set) == 0 {
			delete(idx.byConn, connID)
		}
	}
}

// SubsMatching returns every non-group subscription (from any shard) whose
// topic matches subj.
func (idx *Index) SubsMatching(subj string) []broker.Subscription {
	var out []broker.Subscription
	for pattern, keys := range idx.byPattern {
		top, err := subject.New(pattern)
		if err != nil || !top.Matches(subj) {
			continue
		}
		for key := range keys {
			if sub := idx.subs[key]; !sub.HasQueue() {
				out = append(out, sub)
			}
		}
	}
	return out
}

// GroupsMatching returns, for every queue group whose topic matches subj,
// the full fleet-wide membership set (spanning every shard that broadcast a
// member). Callers pick one member: uniformly at random for a local
// decision, or weighted by per-shard membership count for a router decision
// (spec §9's "queue-group random selection across shards").
func (idx *Index) GroupsMatching(subj string) map[broker.GroupKey][]broker.Subscription {
	out := make(map[broker.GroupKey][]broker.Subscription)
	for gk, keys := range idx.byGroup {
		top, err := subject.New(gk.Topic)
		if err != nil || !top.Matches(subj) {
			continue
		}
		members := make([]broker.Subscription, 0, len(keys))
		for key := range keys {
			members = append(members, idx.subs[key])
		}
		out[gk] = members
	}
	return out
}

// SubsOf returns every subscription owned by connID, for disconnect cleanup.
func (idx *Index) SubsOf(connID uint64) []broker.Subscription {
	keys := idx.byConn[connID]
	out := make([]broker.Subscription, 0, len(keys))
	for key := range keys {
		out = append(out, idx.subs[key])
	}
	return out
}
