package net

// The five wire protocol topics named in spec.md §4.8. Every connected peer
// participates in every topic; there is no separate subscribe/unsubscribe
// exchange, since spec.md §4.8 calls this a "thin wiring" layer rather than
// a general pub/sub service. Each topic carries its own minimum mesh size so
// Publish can enforce spec.md §5's backpressure rule independently per
// topic (entries might tolerate a smaller live mesh than gossip does).
const (
	TopicEntries      = "/rope/entries/1.0.0"
	TopicGossip       = "/rope/gossip/1.0.0"
	TopicAttestations = "/rope/attestations/1.0.0"
	TopicAnchors      = "/rope/anchors/1.0.0"
	TopicErasure      = "/rope/erasure/1.0.0"
)

// Topics lists every topic name this layer knows how to dispatch.
var Topics = []string{TopicEntries, TopicGossip, TopicAttestations, TopicAnchors, TopicErasure}

// defaultTopicMinimum is the minimum connected-peer mesh size a topic must
// have before Publish will attempt to send, absent an explicit override in
// Config.TopicMinimums.
const defaultTopicMinimum = 1

func isKnownTopic(topic string) bool {
	for _, t := range Topics {
		if t == topic {
			return true
		}
	}
	return false
}
