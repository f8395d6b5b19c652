package database

import (
	"cmp"
	"context"
	"slices"
	"sync"
)

// MemoryDatabase keeps all records in a map guarded by a mutex. Ids come from a
// counter that survives resets, so they are never reused.
type MemoryDatabase struct {
	mu     sync.Mutex
	images map[int64]*Image
	nextID int64
}

func NewMemoryDatabase() *MemoryDatabase {
	return &MemoryDatabase{
		images: make(map[int64]*Image),
		nextID: 1,
	}
}

func (m *MemoryDatabase) CreateDatabase(context.Context) error { return nil }

func (m *MemoryDatabase) Ping(context.Context) error { return nil }

func (m *MemoryDatabase) Close() error { return nil }

func (m *MemoryDatabase) GetAllImages(context.Context) ([]*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	images := make([]*Image, 0, len(m.images))
	for _, img := range m.images {
		images = append(images, img.clone())
	}
	slices.SortFunc(images, func(a, b *Image) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return images, nil
}

func (m *MemoryDatabase) GetImage(_ context.Context, id int64) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok {
		return nil, ErrImageNotFound
	}
	return img.clone(), nil
}

func (m *MemoryDatabase) CreateImages(_ context.Context, images []NewImage) ([]*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	created := make([]*Image, 0, len(images))
	for _, in := range images {
		img := &Image{
			ID:        m.nextID,
			Name:      in.Name,
			Data:      in.Data,
			Timestamp: in.Timestamp,
		}
		m.nextID++
		m.images[img.ID] = img
		created = append(created, img.clone())
	}
	return created, nil
}

func (m *MemoryDatabase) SelectImage(_ context.Context, id int64, groupID int, quota int) (*Image, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	img, ok := m.images[id]
	if !ok {
		return nil, ErrImageNotFound
	}
	if img.SelectedCount >= quota {
		return img.clone(), nil
	}
	img.SelectedCount++
	img.Selected = true
	img.GroupID = groupID
	img.Timestamp = Now()
	return img.clone(), nil
}

func (m *MemoryDatabase) DeleteImage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.images[id]; !ok {
		return ErrImageNotFound
	}
	delete(m.images, id)
	return nil
}

func (m *MemoryDatabase) ResetImages(_ context.Context, policy ResetPolicy) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch policy {
	case ResetDelete:
		m.images = make(map[int64]*Image)
	case ResetClear:
		for _, img := range m.images {
			img.Selected = false
			img.SelectedCount = 0
			img.GroupID = 0
		}
	default:
		return errInvalidResetPolicy(policy)
	}
	return nil
}
