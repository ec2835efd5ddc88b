package dedup

import (
	"sort"

	"github.com/modullar/violations-tracker-backend/internal/db"
)

// Cluster is a group of records judged to describe the same event, with the
// evidence for each non-seed member. Clusters exist only for the duration of
// one consolidation pass.
type Cluster struct {
	Members []*db.Violation
	// Evidence holds the pairwise result against the cluster seed, keyed by
	// violation UUID. The seed itself has no entry.
	Evidence map[string]SimilarityResult
}

// BuildClusters partitions records into duplicate clusters of two or more
// members. Records are iterated in slice order (callers pass them in creation
// order); each unvisited record seeds a cluster and every remaining unvisited
// record is classified against that seed. The visited set guarantees each
// record lands in at most one cluster per run.
//
// This is single-linkage chaining from one seed, not full transitive closure:
// a record that matches the seed but not some other member is still included.
func BuildClusters(records []db.Violation, scorer *Scorer, classifier *Classifier) []Cluster {
	visited := make(map[int64]struct{}, len(records))
	var clusters []Cluster

	for i := range records {
		seed := &records[i]
		if _, seen := visited[seed.ViolationID]; seen {
			continue
		}
		visited[seed.ViolationID] = struct{}{}

		cluster := Cluster{
			Members:  []*db.Violation{seed},
			Evidence: map[string]SimilarityResult{},
		}

		for j := i + 1; j < len(records); j++ {
			candidate := &records[j]
			if _, seen := visited[candidate.ViolationID]; seen {
				continue
			}

			result := scorer.Score(seed, candidate)
			if !classifier.IsDuplicate(result) {
				continue
			}
			visited[candidate.ViolationID] = struct{}{}
			cluster.Members = append(cluster.Members, candidate)
			cluster.Evidence[candidate.ViolationUUID] = result
		}

		if len(cluster.Members) >= 2 {
			clusters = append(clusters, cluster)
		}
	}

	return clusters
}

// SelectRepresentative picks the canonical member of a cluster by a strict
// priority chain: verified beats unverified, then longer description, then
// more recently updated, then completeness (victims + media + tags). The
// final violation-ID tie-break makes the ordering total so repeated runs pick
// the same record.
func SelectRepresentative(members []*db.Violation) *db.Violation {
	if len(members) == 0 {
		return nil
	}

	ranked := make([]*db.Violation, len(members))
	copy(ranked, members)
	sort.SliceStable(ranked, func(i, j int) bool {
		return representativeLess(ranked[j], ranked[i])
	})
	return ranked[0]
}

// representativeLess reports whether a ranks strictly below b.
func representativeLess(a, b *db.Violation) bool {
	if a.Verified != b.Verified {
		return !a.Verified
	}
	if la, lb := descriptionLength(a), descriptionLength(b); la != lb {
		return la < lb
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.Before(b.UpdatedAt)
	}
	if ca, cb := completeness(a), completeness(b); ca != cb {
		return ca < cb
	}
	return a.ViolationID > b.ViolationID
}

func descriptionLength(v *db.Violation) int {
	enLen := len([]rune(v.Description.EN))
	arLen := len([]rune(v.Description.AR))
	if arLen > enLen {
		return arLen
	}
	return enLen
}

func completeness(v *db.Violation) int {
	return len(v.Victims) + len(v.MediaLinks) + len(v.Tags)
}
