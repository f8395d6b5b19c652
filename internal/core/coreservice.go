package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/jo-hoe/carddraw/internal/backend/database"
	"github.com/jo-hoe/carddraw/internal/backend/imageprocessing"
	"github.com/jo-hoe/carddraw/internal/backend/selection"
	"github.com/jo-hoe/carddraw/internal/metrics"
)

// MaxThumbnailWidth bounds the width a thumbnail may be requested at.
const MaxThumbnailWidth = 1024

var (
	// ErrInvalidGroup is returned when a group outside 0..totalGroups is requested.
	ErrInvalidGroup = errors.New("invalid group")
	// ErrDrawConflict is returned when the picked image reached its quota or
	// was deleted by another request before the draw could be persisted.
	ErrDrawConflict = errors.New("image was drawn concurrently")
	// ErrUndecodable is returned when stored image data cannot be rendered.
	ErrUndecodable = errors.New("image data cannot be decoded")
)

// Advance announces that the draw moves from one group to the next.
type Advance struct {
	From    int   `json:"from"`
	To      int   `json:"to"`
	DelayMs int64 `json:"delayMs"`
}

// DrawResult is the outcome of a single draw request.
type DrawResult struct {
	Outcome     selection.Outcome `json:"outcome"`
	Image       *database.Image   `json:"image,omitempty"`
	ActiveGroup int               `json:"activeGroup"`
	Advance     *Advance          `json:"advance,omitempty"`
	Message     string            `json:"message"`
}

// Session is the group state a draw runs against.
type Session struct {
	ActiveGroup int `json:"activeGroup"`
	TotalGroups int `json:"totalGroups"`
}

// Status combines the derived selection summary with the session.
type Status struct {
	selection.Summary
	Session
}

type CoreService struct {
	config  *ServiceConfig
	store   database.ImageStore
	policy  *selection.Policy
	metrics *metrics.Metrics

	// drawMu serialises draws, resets and session changes.
	drawMu  sync.Mutex
	session Session
	pending *time.Timer
}

// NewCoreService wires the store and the selection policy. A nil rng seeds
// one randomly; tests pass a fixed one.
func NewCoreService(config *ServiceConfig, store database.ImageStore, m *metrics.Metrics, rng *rand.Rand) *CoreService {
	return &CoreService{
		config:  config,
		store:   store,
		policy:  selection.NewPolicy(config.Selection.Quota, rng),
		metrics: m,
		session: Session{
			TotalGroups: config.Selection.Groups,
		},
	}
}

func (service *CoreService) Close() error {
	service.drawMu.Lock()
	service.stopPendingLocked()
	service.drawMu.Unlock()
	return service.store.Close()
}

func (service *CoreService) Ping(ctx context.Context) error {
	return service.store.Ping(ctx)
}

func (service *CoreService) GetImages(ctx context.Context) ([]*database.Image, error) {
	return service.store.GetAllImages(ctx)
}

func (service *CoreService) GetImage(ctx context.Context, id int64) (*database.Image, error) {
	return service.store.GetImage(ctx, id)
}

// UploadImage is the name and data URI of one uploaded file.
type UploadImage struct {
	Name string
	Data string
}

func (service *CoreService) AddImages(ctx context.Context, uploads []UploadImage) ([]*database.Image, error) {
	ts := database.Now()
	images := make([]database.NewImage, 0, len(uploads))
	for _, u := range uploads {
		images = append(images, database.NewImage{Name: u.Name, Data: u.Data, Timestamp: ts})
	}

	created, err := service.store.CreateImages(ctx, images)
	if err != nil {
		return nil, fmt.Errorf("failed to create images: %w", err)
	}
	service.metrics.ImagesUploaded.Add(float64(len(created)))
	slog.Info("images uploaded", "count", len(created))
	return created, nil
}

// SelectImage marks a specific image as drawn into groupID, honouring the quota.
func (service *CoreService) SelectImage(ctx context.Context, id int64, groupID int) (*database.Image, error) {
	return service.store.SelectImage(ctx, id, groupID, service.policy.Quota())
}

func (service *CoreService) DeleteImage(ctx context.Context, id int64) error {
	if err := service.store.DeleteImage(ctx, id); err != nil {
		return err
	}
	slog.Info("image deleted", "image_id", id)
	return nil
}

// Reset applies the configured reset policy, returns the draw to group 0 and
// drops any pending advance. It returns the images left afterwards.
func (service *CoreService) Reset(ctx context.Context) ([]*database.Image, error) {
	service.drawMu.Lock()
	defer service.drawMu.Unlock()

	policy := service.config.Selection.ResetPolicy
	if err := service.store.ResetImages(ctx, policy); err != nil {
		return nil, fmt.Errorf("failed to reset images: %w", err)
	}
	service.stopPendingLocked()
	service.session.ActiveGroup = 0
	service.metrics.Resets.WithLabelValues(string(policy)).Inc()
	slog.Info("images reset", "policy", policy)

	return service.store.GetAllImages(ctx)
}

func (service *CoreService) GetSession() Session {
	service.drawMu.Lock()
	defer service.drawMu.Unlock()
	return service.session
}

// UpdateSession sets the number of groups, clamped to 1..MaxGroups, and the
// active group. An active group beyond the new total falls back to 0.
func (service *CoreService) UpdateSession(totalGroups int, activeGroup *int) (Session, error) {
	service.drawMu.Lock()
	defer service.drawMu.Unlock()

	totalGroups = max(1, min(totalGroups, MaxGroups))
	next := service.session.ActiveGroup
	if activeGroup != nil {
		if *activeGroup < 0 || *activeGroup > totalGroups {
			return service.session, fmt.Errorf("%w: %d not in 0..%d", ErrInvalidGroup, *activeGroup, totalGroups)
		}
		next = *activeGroup
	}
	if next > totalGroups {
		next = 0
	}

	service.stopPendingLocked()
	service.session = Session{ActiveGroup: next, TotalGroups: totalGroups}
	return service.session, nil
}

// Status is recomputed from the store on every call.
func (service *CoreService) Status(ctx context.Context) (*Status, error) {
	images, err := service.store.GetAllImages(ctx)
	if err != nil {
		return nil, err
	}
	return &Status{
		Summary: selection.Summarize(images, service.policy.Quota()),
		Session: service.GetSession(),
	}, nil
}

// Draw picks one image at random for the requested group, or the active group
// when group is nil, and persists the selection.
func (service *CoreService) Draw(ctx context.Context, group *int) (*DrawResult, error) {
	service.drawMu.Lock()
	defer service.drawMu.Unlock()

	if group != nil {
		if *group < 0 || *group > service.session.TotalGroups {
			return nil, fmt.Errorf("%w: %d not in 0..%d", ErrInvalidGroup, *group, service.session.TotalGroups)
		}
		service.session.ActiveGroup = *group
	}
	service.stopPendingLocked()

	current := service.session.ActiveGroup
	totalGroups := service.session.TotalGroups

	images, err := service.store.GetAllImages(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	plan := service.policy.Plan(images, current, totalGroups)
	result := &DrawResult{Outcome: plan.Outcome}

	switch plan.Outcome {
	case selection.OutcomeDrawn:
		drawn, err := service.store.SelectImage(ctx, plan.Image.ID, current, service.policy.Quota())
		if errors.Is(err, database.ErrImageNotFound) {
			return nil, fmt.Errorf("%w: image %d was deleted", ErrDrawConflict, plan.Image.ID)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to persist draw of image %d: %w", plan.Image.ID, err)
		}
		if drawn.SelectedCount == plan.Image.SelectedCount {
			return nil, fmt.Errorf("%w: image %d", ErrDrawConflict, drawn.ID)
		}
		result.Image = drawn
		result.Message = fmt.Sprintf("drew %s", drawn.Name)

		replaceImage(images, drawn)
		if next, ok := service.policy.AdvanceAfterDraw(images, drawn, current, totalGroups); ok {
			delay := service.config.Selection.AdvanceDelay
			result.Advance = &Advance{From: current, To: next, DelayMs: delay.Milliseconds()}
			result.Message = fmt.Sprintf("group %d is finished, switching to group %d", current, next)
			service.scheduleAdvanceLocked(current, next, delay)
		}
	case selection.OutcomeGroupExhausted:
		result.Advance = &Advance{From: current, To: plan.NextGroup}
		result.Message = fmt.Sprintf("group %d has no images left, switched to group %d", current, plan.NextGroup)
		service.advanceLocked(current, plan.NextGroup)
	case selection.OutcomeGroupEmpty:
		result.Message = fmt.Sprintf("group %d has no images left; reset or choose another group", current)
	case selection.OutcomeAllSelected:
		result.Message = "all images have been drawn; reset to start over"
	case selection.OutcomeNoImages:
		result.Message = "no images uploaded"
	}

	result.ActiveGroup = service.session.ActiveGroup
	service.metrics.Draws.WithLabelValues(string(result.Outcome)).Inc()
	slog.Info("draw completed",
		"outcome", result.Outcome,
		"group", current,
		"total_groups", totalGroups,
		"active_group", result.ActiveGroup)
	return result, nil
}

// Thumbnail renders image id as a PNG no wider than width.
func (service *CoreService) Thumbnail(ctx context.Context, id int64, width int) ([]byte, error) {
	if width <= 0 {
		width = service.config.ThumbnailWidth
	}
	width = min(width, MaxThumbnailWidth)

	img, err := service.store.GetImage(ctx, id)
	if err != nil {
		return nil, err
	}
	thumbnail, err := imageprocessing.Thumbnail(img.Data, width)
	if err != nil {
		return nil, fmt.Errorf("%w: image %d: %w", ErrUndecodable, id, err)
	}
	return thumbnail, nil
}

func replaceImage(images []*database.Image, updated *database.Image) {
	for i, img := range images {
		if img.ID == updated.ID {
			images[i] = updated
			return
		}
	}
}

func (service *CoreService) advanceLocked(from, to int) {
	service.session.ActiveGroup = to
	service.metrics.GroupAdvances.Inc()
	slog.Info("group advanced", "from", from, "to", to)
}

// scheduleAdvanceLocked switches groups after delay unless a later draw, reset
// or session change got there first. A zero delay switches immediately.
func (service *CoreService) scheduleAdvanceLocked(from, to int, delay time.Duration) {
	if delay <= 0 {
		service.advanceLocked(from, to)
		return
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		service.drawMu.Lock()
		defer service.drawMu.Unlock()
		if service.pending != timer {
			return
		}
		service.pending = nil
		if service.session.ActiveGroup == from {
			service.advanceLocked(from, to)
		}
	})
	service.pending = timer
}

func (service *CoreService) stopPendingLocked() {
	if service.pending != nil {
		service.pending.Stop()
		service.pending = nil
	}
}
