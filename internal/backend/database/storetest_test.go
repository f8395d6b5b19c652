package database

import (
	"context"
	"errors"
	"sync"
	"testing"
)

const testPNG = "data:image/png;base64,iVBORw0KGgo="

func newImages(names ...string) []NewImage {
	images := make([]NewImage, 0, len(names))
	for _, name := range names {
		images = append(images, NewImage{Name: name, Data: testPNG, Timestamp: Now()})
	}
	return images
}

// runStoreContract exercises the behaviour every ImageStore has to provide.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ImageStore) {
	t.Run("CreateAndList", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()

		created, err := ds.CreateImages(ctx, newImages("a.png", "b.png", "c.png"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		if len(created) != 3 {
			t.Fatalf("expected 3 created images, got %d", len(created))
		}
		for i, img := range created {
			if img.Selected || img.SelectedCount != 0 || img.GroupID != 0 {
				t.Errorf("created[%d] has selection state: %+v", i, img)
			}
			if img.Timestamp == "" {
				t.Errorf("created[%d].Timestamp is empty", i)
			}
		}

		images, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		if len(images) != 3 {
			t.Fatalf("expected 3 images, got %d", len(images))
		}
		for i := 1; i < len(images); i++ {
			if images[i-1].ID >= images[i].ID {
				t.Fatalf("images not ordered by id: %d before %d", images[i-1].ID, images[i].ID)
			}
		}
		if images[0].Name != "a.png" || images[0].Data != testPNG {
			t.Errorf("unexpected first image: %+v", images[0])
		}
	})

	t.Run("CreateEmpty", func(t *testing.T) {
		ds := newStore(t)
		created, err := ds.CreateImages(context.Background(), nil)
		if err != nil {
			t.Fatalf("CreateImages(nil) error: %v", err)
		}
		if len(created) != 0 {
			t.Fatalf("expected no images, got %d", len(created))
		}
	})

	t.Run("ListIsStable", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		if _, err := ds.CreateImages(ctx, newImages("a", "b")); err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		first, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		second, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		if len(first) != len(second) {
			t.Fatalf("list length changed: %d vs %d", len(first), len(second))
		}
		for i := range first {
			if *first[i] != *second[i] {
				t.Errorf("image %d differs between reads: %+v vs %+v", i, first[i], second[i])
			}
		}
	})

	t.Run("GetImageNotFound", func(t *testing.T) {
		ds := newStore(t)
		_, err := ds.GetImage(context.Background(), 4242)
		if !errors.Is(err, ErrImageNotFound) {
			t.Fatalf("expected ErrImageNotFound, got %v", err)
		}
	})

	t.Run("SelectRespectsQuota", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		created, err := ds.CreateImages(ctx, newImages("a"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		id := created[0].ID

		img, err := ds.SelectImage(ctx, id, 2, 2)
		if err != nil {
			t.Fatalf("SelectImage #1 error: %v", err)
		}
		if !img.Selected || img.SelectedCount != 1 || img.GroupID != 2 {
			t.Fatalf("unexpected state after first select: %+v", img)
		}

		img, err = ds.SelectImage(ctx, id, 1, 2)
		if err != nil {
			t.Fatalf("SelectImage #2 error: %v", err)
		}
		if img.SelectedCount != 2 || img.GroupID != 1 {
			t.Fatalf("unexpected state after second select: %+v", img)
		}

		img, err = ds.SelectImage(ctx, id, 3, 2)
		if err != nil {
			t.Fatalf("SelectImage #3 error: %v", err)
		}
		if img.SelectedCount != 2 || img.GroupID != 1 {
			t.Fatalf("select past quota mutated the image: %+v", img)
		}
	})

	t.Run("SelectNotFound", func(t *testing.T) {
		ds := newStore(t)
		_, err := ds.SelectImage(context.Background(), 99, 0, 1)
		if !errors.Is(err, ErrImageNotFound) {
			t.Fatalf("expected ErrImageNotFound, got %v", err)
		}
	})

	t.Run("ConcurrentSelectNeverExceedsQuota", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		created, err := ds.CreateImages(ctx, newImages("a"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		id := created[0].ID

		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := ds.SelectImage(ctx, id, 0, 1); err != nil {
					t.Errorf("SelectImage error: %v", err)
				}
			}()
		}
		wg.Wait()

		img, err := ds.GetImage(ctx, id)
		if err != nil {
			t.Fatalf("GetImage error: %v", err)
		}
		if img.SelectedCount != 1 {
			t.Fatalf("expected selected count 1, got %d", img.SelectedCount)
		}
	})

	t.Run("DeleteImage", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		created, err := ds.CreateImages(ctx, newImages("a", "b"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		if err := ds.DeleteImage(ctx, created[0].ID); err != nil {
			t.Fatalf("DeleteImage error: %v", err)
		}
		images, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		if len(images) != 1 || images[0].ID != created[1].ID {
			t.Fatalf("expected only image %d to remain, got %+v", created[1].ID, images)
		}
		if err := ds.DeleteImage(ctx, created[0].ID); !errors.Is(err, ErrImageNotFound) {
			t.Fatalf("expected ErrImageNotFound on second delete, got %v", err)
		}
	})

	t.Run("ResetClear", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		created, err := ds.CreateImages(ctx, newImages("a", "b"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		if _, err := ds.SelectImage(ctx, created[0].ID, 1, 1); err != nil {
			t.Fatalf("SelectImage error: %v", err)
		}
		if err := ds.ResetImages(ctx, ResetClear); err != nil {
			t.Fatalf("ResetImages error: %v", err)
		}
		images, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		if len(images) != 2 {
			t.Fatalf("expected 2 images after clear, got %d", len(images))
		}
		for _, img := range images {
			if img.Selected || img.SelectedCount != 0 || img.GroupID != 0 {
				t.Errorf("image %d not cleared: %+v", img.ID, img)
			}
		}
	})

	t.Run("ResetDeleteNeverReusesIDs", func(t *testing.T) {
		ds := newStore(t)
		ctx := context.Background()
		before, err := ds.CreateImages(ctx, newImages("a", "b"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		if err := ds.ResetImages(ctx, ResetDelete); err != nil {
			t.Fatalf("ResetImages error: %v", err)
		}
		images, err := ds.GetAllImages(ctx)
		if err != nil {
			t.Fatalf("GetAllImages error: %v", err)
		}
		if len(images) != 0 {
			t.Fatalf("expected no images after delete reset, got %d", len(images))
		}
		after, err := ds.CreateImages(ctx, newImages("c"))
		if err != nil {
			t.Fatalf("CreateImages error: %v", err)
		}
		if after[0].ID <= before[1].ID {
			t.Fatalf("id %d reused after reset (last was %d)", after[0].ID, before[1].ID)
		}
	})

	t.Run("ResetInvalidPolicy", func(t *testing.T) {
		ds := newStore(t)
		if err := ds.ResetImages(context.Background(), ResetPolicy("shred")); err == nil {
			t.Fatalf("expected error for unknown reset policy")
		}
	})
}
