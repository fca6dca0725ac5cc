package mqtt

import "strings"

// MatchTopic reports whether a concrete topic matches a subscription
// pattern using the standard MQTT wildcard semantics: "+" matches exactly
// one topic level, "#" matches the remainder of the topic (and must be the
// final level of the pattern).
//
// Automation rules filter on the pattern the rule author wrote even though
// the broker may have delivered the message because of a broader
// subscription the client chose to minimise connection count.
func MatchTopic(pattern, topic string) bool {
	patternLevels := strings.Split(pattern, "/")
	topicLevels := strings.Split(topic, "/")

	for i, p := range patternLevels {
		if p == "#" {
			return i == len(patternLevels)-1
		}
		if i >= len(topicLevels) {
			return false
		}
		if p != "+" && p != topicLevels[i] {
			return false
		}
	}
	return len(patternLevels) == len(topicLevels)
}

// SubscriptionPatterns returns each distinct non-empty rule topic pattern
// once, in first-seen order; only identical strings are merged. Rules may share a broader pattern; each distinct pattern the
// config declares is subscribed to independently — merging overlapping
// wildcards is intentionally left to the operator's config, since silently
// collapsing "a/+/c" and "a/b/c" would change delivery semantics the
// automation layer depends on.
func SubscriptionPatterns(rulePatterns []string) []string {
	seen := make(map[string]bool, len(rulePatterns))
	var out []string
	for _, p := range rulePatterns {
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}
