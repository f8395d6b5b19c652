package database

import "context"

// ImageStore persists image records and their selection state.
type ImageStore interface {
	// CreateDatabase prepares the backing schema. It is idempotent.
	CreateDatabase(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error

	// GetAllImages returns every stored image ordered by id.
	GetAllImages(ctx context.Context) ([]*Image, error)
	GetImage(ctx context.Context, id int64) (*Image, error)
	// CreateImages inserts all images in one unit of work, unselected and ungrouped.
	CreateImages(ctx context.Context, images []NewImage) ([]*Image, error)
	// SelectImage atomically increments the selection count of an image, assigns
	// groupID and refreshes its timestamp, unless the count already reached quota.
	// In that case the unmodified image is returned.
	SelectImage(ctx context.Context, id int64, groupID int, quota int) (*Image, error)
	DeleteImage(ctx context.Context, id int64) error
	ResetImages(ctx context.Context, policy ResetPolicy) error
}
