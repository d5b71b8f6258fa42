package store

// DeriveReadStarred enforces I4: isRead is the absence of UNREAD, isStarred
// is the presence of STARRED. Every writer that changes Labels must run
// its result through this before persisting.
func DeriveReadStarred(labels []string) (isRead, isStarred bool) {
	isRead = true
	for _, l := range labels {
		switch l {
		case "UNREAD":
			isRead = false
		case "STARRED":
			isStarred = true
		}
	}
	return isRead, isStarred
}

// DeriveCategory enforces I7.
func DeriveCategory(labels []string) MessageCategory {
	for _, l := range labels {
		switch l {
		case "CATEGORY_SOCIAL":
			return CategorySocial
		case "CATEGORY_PROMOTIONS":
			return CategoryPromotions
		case "CATEGORY_UPDATES":
			return CategoryUpdates
		case "CATEGORY_FORUMS":
			return CategoryForums
		}
	}
	return CategoryPrimary
}

// MergeLabels computes (old \ remove) ∪ add, deduplicated, preserving
// the order of old then newly-added tokens. Used by incremental sync's
// labelsModified application and by the Move Coordinator.
func MergeLabels(old, add, remove []string) []string {
	removeSet := make(map[string]bool, len(remove))
	for _, l := range remove {
		removeSet[l] = true
	}
	seen := make(map[string]bool, len(old)+len(add))
	merged := make([]string, 0, len(old)+len(add))
	for _, l := range old {
		if removeSet[l] || seen[l] {
			continue
		}
		seen[l] = true
		merged = append(merged, l)
	}
	for _, l := range add {
		if seen[l] {
			continue
		}
		seen[l] = true
		merged = append(merged, l)
	}
	return merged
}

// DedupStrings removes duplicate entries while preserving first-seen order.
func DedupStrings(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
