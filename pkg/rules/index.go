// Package rules builds the per-community lookup from (stage, event kind) to the
// ordered rules bound there.
package rules

import "github.com/dukex/stageflow/pkg/models"

type key struct {
	stageID string
	kind    models.EventKind
}

// Index is an immutable snapshot of a community's rules. It is safe for
// concurrent reads.
type Index struct {
	communityID string
	byKey       map[key][]*models.Rule
	size        int
}

// NewIndex builds an index from the community's full rule set. Rules belonging
// to other communities are ignored.
func NewIndex(communityID string, all []*models.Rule) *Index {
	sorted := make([]*models.Rule, 0, len(all))
	for _, rule := range all {
		if rule == nil || rule.CommunityID != communityID {
			continue
		}

		sorted = append(sorted, rule)
	}

	models.SortRules(sorted)

	idx := &Index{
		communityID: communityID,
		byKey:       make(map[key][]*models.Rule),
		size:        len(sorted),
	}

	for _, rule := range sorted {
		k := key{stageID: rule.StageID, kind: rule.Event}
		idx.byKey[k] = append(idx.byKey[k], rule)
	}

	return idx
}

// Resolve returns the rules bound to (stageID, kind) in dispatch order. The
// returned slice is a copy; callers may keep it as their snapshot.
func (i *Index) Resolve(stageID string, kind models.EventKind) []*models.Rule {
	bound := i.byKey[key{stageID: stageID, kind: kind}]

	resolved := make([]*models.Rule, len(bound))
	copy(resolved, bound)

	return resolved
}

// CommunityID returns the community the index was built for.
func (i *Index) CommunityID() string {
	return i.communityID
}

// Len returns the number of indexed rules.
func (i *Index) Len() int {
	return i.size
}
