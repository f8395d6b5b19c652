package selection

import "github.com/jo-hoe/carddraw/internal/backend/database"

// Summary is a derived view of the selection state. It is recomputed from the
// image list on every call.
type Summary struct {
	Total     int  `json:"total"`
	Selected  int  `json:"selected"`
	Remaining int  `json:"remaining"`
	Complete  bool `json:"complete"`
	Quota     int  `json:"quota"`

	// GroupDraws maps a group to the number of images it currently holds.
	GroupDraws map[int]int `json:"groupDraws"`
}

func Summarize(images []*database.Image, quota int) Summary {
	s := Summary{
		Total:      len(images),
		Quota:      quota,
		Complete:   IsComplete(images, quota),
		GroupDraws: map[int]int{},
	}
	for _, img := range images {
		if img.SelectedCount > 0 {
			s.Selected++
			if img.GroupID > 0 {
				s.GroupDraws[img.GroupID]++
			}
		}
		if IsDrawable(img, quota) {
			s.Remaining++
		}
	}
	return s
}
