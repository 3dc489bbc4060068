package main

import (
	"sort"
)

// ReactionMap maps an emoji to the uids that reacted with it.
type ReactionMap map[string][]string

// equal compares two reaction maps by value. A missing emoji and an empty
// list are treated the same.
func (r ReactionMap) equal(other ReactionMap) bool {
	for emoji, users := range r {
		if !sameUsers(users, other[emoji]) {
			return false
		}
	}
	for emoji, users := range other {
		if _, ok := r[emoji]; !ok && len(users) > 0 {
			return false
		}
	}
	return true
}

func sameUsers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// sortedEmojis returns the keys of r in ascending order so that the
// first-match tie-break is stable across runs.
func (r ReactionMap) sortedEmojis() []string {
	emojis := make([]string, 0, len(r))
	for emoji := range r {
		emojis = append(emojis, emoji)
	}
	sort.Strings(emojis)
	return emojis
}

// findNewReaction reports the reaction added between before and after.
// Only the first emoji whose user list grew is considered; if no user in it
// is new, no reaction is reported.
func findNewReaction(before, after ReactionMap) (reactorId string, emoji string, ok bool) {
	if before.equal(after) {
		return "", "", false
	}

	for _, e := range after.sortedEmojis() {
		afterUsers := after[e]
		beforeUsers := before[e]
		if len(afterUsers) <= len(beforeUsers) {
			continue
		}

		seen := make(map[string]struct{}, len(beforeUsers))
		for _, u := range beforeUsers {
			seen[u] = struct{}{}
		}
		for _, u := range afterUsers {
			if _, exists := seen[u]; !exists {
				return u, e, true
			}
		}
		return "", "", false
	}

	return "", "", false
}
