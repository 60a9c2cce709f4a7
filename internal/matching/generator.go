// Package matching computes conflict-free evaluator assignments for one
// assignment round. The computation is pure: it performs no I/O and is fully
// deterministic for a given seed, which keeps matching runs reproducible.
package matching

import (
	"errors"
	"fmt"
	"math/rand"
)

// Strategy selects how the evaluator permutation is constructed.
type Strategy string

const (
	// StrategyShift rotates the submitter list by a random non-zero offset.
	// A cyclic shift of the full list is a derangement by construction, so
	// every submitter evaluates exactly one foreign submission.
	StrategyShift Strategy = "shift"
	// StrategyRejection samples random permutations and resamples on any
	// fixed point. Kept for parity with the legacy random assignment.
	StrategyRejection Strategy = "rejection"
)

// DefaultRejectionBudget bounds the resampling loop for StrategyRejection.
const DefaultRejectionBudget = 1000

var (
	// ErrInsufficientParticipants is returned when fewer than two submissions exist.
	ErrInsufficientParticipants = errors.New("at least two submissions are required for peer matching")
	// ErrDuplicateSubmitter is returned when two submissions share a submitter.
	ErrDuplicateSubmitter = errors.New("submissions must have pairwise-distinct submitters")
	// ErrNoConflictFreeAssignment is returned when the exclusion constraints rule out every candidate.
	ErrNoConflictFreeAssignment = errors.New("no conflict-free evaluator assignment exists for the given exclusions")
)

// Entry identifies one submission eligible for peer evaluation.
type Entry struct {
	SubmissionID uint
	SubmitterID  uint
}

// Pairing assigns one evaluator to one submission.
type Pairing struct {
	SubmissionID uint
	SubmitterID  uint
	EvaluatorID  uint
	ColorGroup   int
}

// Options tunes a matching run.
type Options struct {
	Round    int
	Seed     int64
	Strategy Strategy
	// Exclude maps a submission id to evaluators that must not be chosen
	// again, typically evaluators used in prior rounds.
	Exclude map[uint][]uint
	// RejectionBudget caps permutation resampling; zero means DefaultRejectionBudget.
	RejectionBudget int
}

// Generate produces a conflict-free evaluator mapping over entries.
//
// Every submitter is assigned exactly one foreign submission to evaluate and
// every submission receives exactly one evaluator: the mapping is a
// fixed-point-free bijection over the submitter set.
func Generate(assignmentID uint, entries []Entry, opts Options) ([]Pairing, error) {
	n := len(entries)
	if n < 2 {
		return nil, fmt.Errorf("assignment %d has %d submission(s): %w", assignmentID, n, ErrInsufficientParticipants)
	}

	seen := make(map[uint]struct{}, n)
	for _, entry := range entries {
		if _, dup := seen[entry.SubmitterID]; dup {
			return nil, fmt.Errorf("assignment %d: submitter %d appears twice: %w", assignmentID, entry.SubmitterID, ErrDuplicateSubmitter)
		}
		seen[entry.SubmitterID] = struct{}{}
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	switch opts.Strategy {
	case StrategyRejection:
		return generateRejection(entries, opts, rng)
	default:
		return generateShift(entries, opts, rng)
	}
}

// generateShift walks shift offsets starting at a seeded position and returns
// the first rotation compatible with the exclusion set. With no exclusions the
// first candidate always wins, so the common case is O(n).
func generateShift(entries []Entry, opts Options, rng *rand.Rand) ([]Pairing, error) {
	n := len(entries)
	start := 1 + rng.Intn(n-1)

	for offset := 0; offset < n-1; offset++ {
		k := 1 + (start-1+offset)%(n-1)
		pairings := applyShift(entries, k)
		if satisfiesExclusions(pairings, opts.Exclude) {
			return pairings, nil
		}
	}

	// Every rotation collides with an exclusion; fall back to a random
	// derangement search before giving up.
	return generateRejection(entries, opts, rng)
}

func applyShift(entries []Entry, k int) []Pairing {
	n := len(entries)
	pairings := make([]Pairing, n)
	for i, entry := range entries {
		pairings[i] = Pairing{
			SubmissionID: entry.SubmissionID,
			SubmitterID:  entry.SubmitterID,
			EvaluatorID:  entries[(i+k)%n].SubmitterID,
			ColorGroup:   i,
		}
	}
	return pairings
}

func generateRejection(entries []Entry, opts Options, rng *rand.Rand) ([]Pairing, error) {
	n := len(entries)
	budget := opts.RejectionBudget
	if budget <= 0 {
		budget = DefaultRejectionBudget
	}

	perm := make([]int, n)
	for attempt := 0; attempt < budget; attempt++ {
		copy(perm, rng.Perm(n))
		if hasFixedPoint(perm) {
			continue
		}

		pairings := make([]Pairing, n)
		for i, entry := range entries {
			pairings[i] = Pairing{
				SubmissionID: entry.SubmissionID,
				SubmitterID:  entry.SubmitterID,
				EvaluatorID:  entries[perm[i]].SubmitterID,
				ColorGroup:   i,
			}
		}
		if satisfiesExclusions(pairings, opts.Exclude) {
			return pairings, nil
		}
	}

	return nil, ErrNoConflictFreeAssignment
}

func hasFixedPoint(perm []int) bool {
	for i, p := range perm {
		if i == p {
			return true
		}
	}
	return false
}

func satisfiesExclusions(pairings []Pairing, exclude map[uint][]uint) bool {
	if len(exclude) == 0 {
		return true
	}
	for _, pairing := range pairings {
		for _, banned := range exclude[pairing.SubmissionID] {
			if pairing.EvaluatorID == banned {
				return false
			}
		}
	}
	return true
}
