// Package selection decides which image a draw may pick, picks one uniformly at
// random and determines when a grouped draw moves on to the next group.
//
// Everything here is a pure function of the current image list; persistence
// and scheduling belong to the caller.
package selection

import (
	"math/rand/v2"
	"sync"

	"github.com/jo-hoe/carddraw/internal/backend/database"
)

// Outcome describes the result of a draw attempt.
type Outcome string

const (
	// OutcomeDrawn means a candidate was picked.
	OutcomeDrawn Outcome = "drawn"
	// OutcomeGroupExhausted means the requested group has no candidates left but
	// other images are still drawable, so the draw moves to the next group.
	OutcomeGroupExhausted Outcome = "group_exhausted"
	// OutcomeGroupEmpty means the requested group has no candidates and no
	// advance is possible.
	OutcomeGroupEmpty Outcome = "group_empty"
	// OutcomeAllSelected means every image reached its quota.
	OutcomeAllSelected Outcome = "all_selected"
	// OutcomeNoImages means there is nothing to draw from.
	OutcomeNoImages Outcome = "no_images"
)

// IsDrawable reports whether img is still below quota.
func IsDrawable(img *database.Image, quota int) bool {
	return img.SelectedCount < quota
}

// drawnInGroup reports whether img was claimed by group.
func drawnInGroup(img *database.Image, group int) bool {
	return img.SelectedCount > 0 && img.GroupID == group
}

// GroupCapacity is the number of draws a single group may hold when the draw is
// partitioned across totalGroups groups. Zero means unlimited.
func GroupCapacity(imageCount, quota, totalGroups int) int {
	if totalGroups <= 1 {
		return 0
	}
	draws := imageCount * quota
	return (draws + totalGroups - 1) / totalGroups
}

// DrawnCount returns how many images are currently claimed by group.
func DrawnCount(images []*database.Image, group int) int {
	n := 0
	for _, img := range images {
		if drawnInGroup(img, group) {
			n++
		}
	}
	return n
}

// Candidates returns the images eligible for the next draw into group.
// Group 0 draws from everything below quota. A positive group additionally
// excludes images it already claimed and yields nothing once it is at capacity.
// The capacity only applies when totalGroups > 1.
func Candidates(images []*database.Image, group, totalGroups, quota int) []*database.Image {
	if group > 0 {
		if capacity := GroupCapacity(len(images), quota, totalGroups); capacity > 0 && DrawnCount(images, group) >= capacity {
			return nil
		}
	}

	var candidates []*database.Image
	for _, img := range images {
		if !IsDrawable(img, quota) {
			continue
		}
		if group > 0 && drawnInGroup(img, group) {
			continue
		}
		candidates = append(candidates, img)
	}
	return candidates
}

// AnyDrawable reports whether at least one image is below quota.
func AnyDrawable(images []*database.Image, quota int) bool {
	for _, img := range images {
		if IsDrawable(img, quota) {
			return true
		}
	}
	return false
}

// IsComplete reports whether every image reached its quota. An empty list is
// not complete.
func IsComplete(images []*database.Image, quota int) bool {
	return len(images) > 0 && !AnyDrawable(images, quota)
}

// NextGroup returns the group that follows current, wrapping to 1.
func NextGroup(current, totalGroups int) int {
	if current == 0 || current >= totalGroups {
		return 1
	}
	return current + 1
}

// Plan is the policy's verdict for one draw attempt.
type Plan struct {
	Outcome Outcome
	// Image is the picked candidate when Outcome is OutcomeDrawn.
	Image *database.Image
	// NextGroup is the group to switch to when Outcome is OutcomeGroupExhausted.
	NextGroup int
}

// Policy picks candidates with a fixed per-image quota. It is safe for
// concurrent use.
type Policy struct {
	quota int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPolicy returns a policy drawing with rng. A nil rng uses a randomly seeded source.
func NewPolicy(quota int, rng *rand.Rand) *Policy {
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Policy{quota: quota, rng: rng}
}

func (p *Policy) Quota() int {
	return p.quota
}

// Pick returns one element of candidates chosen uniformly at random.
func (p *Policy) Pick(candidates []*database.Image) *database.Image {
	if len(candidates) == 0 {
		return nil
	}
	p.mu.Lock()
	idx := p.rng.IntN(len(candidates))
	p.mu.Unlock()
	return candidates[idx]
}

// Plan decides what a draw into group should do given the current images.
func (p *Policy) Plan(images []*database.Image, group, totalGroups int) Plan {
	if len(images) == 0 {
		return Plan{Outcome: OutcomeNoImages}
	}

	candidates := Candidates(images, group, totalGroups, p.quota)
	if len(candidates) > 0 {
		return Plan{Outcome: OutcomeDrawn, Image: p.Pick(candidates)}
	}

	if !AnyDrawable(images, p.quota) {
		return Plan{Outcome: OutcomeAllSelected}
	}
	if group > 0 && totalGroups > 1 {
		return Plan{Outcome: OutcomeGroupExhausted, NextGroup: NextGroup(group, totalGroups)}
	}
	return Plan{Outcome: OutcomeGroupEmpty}
}

// AdvanceAfterDraw reports whether the draw should move on after drawn was
// drawn into group, and to which group. images must already reflect the draw.
func (p *Policy) AdvanceAfterDraw(images []*database.Image, drawn *database.Image, group, totalGroups int) (int, bool) {
	if group <= 0 || totalGroups <= 1 {
		return 0, false
	}

	remaining := 0
	for _, img := range Candidates(images, group, totalGroups, p.quota) {
		if img.ID != drawn.ID {
			remaining++
		}
	}
	if remaining > 0 || !AnyDrawable(images, p.quota) {
		return 0, false
	}
	return NextGroup(group, totalGroups), true
}
