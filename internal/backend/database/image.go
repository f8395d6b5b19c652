package database

import (
	"errors"
	"fmt"
	"time"
)

// ErrImageNotFound is returned when an operation references an id that is not stored.
var ErrImageNotFound = errors.New("image not found")

// TimestampLayout is the ISO-8601 layout used for the timestamp column.
const TimestampLayout = "2006-01-02T15:04:05.000Z07:00"

type Image struct {
	ID            int64  `db:"id" json:"id"`
	Name          string `db:"name" json:"name"`
	Data          string `db:"data" json:"data"` // data URI, e.g. data:image/png;base64,...
	Selected      bool   `db:"selected" json:"selected"`
	SelectedCount int    `db:"selected_count" json:"selectedCount"`
	GroupID       int    `db:"group_id" json:"groupId"`
	Timestamp     string `db:"timestamp" json:"timestamp"`
}

// NewImage is the insert payload for a single upload.
type NewImage struct {
	Name      string
	Data      string
	Timestamp string
}

type ResetPolicy string

const (
	// ResetDelete removes every image record.
	ResetDelete ResetPolicy = "delete"
	// ResetClear keeps the records but zeroes their selection state.
	ResetClear ResetPolicy = "clear"
)

func (p ResetPolicy) Valid() bool {
	return p == ResetDelete || p == ResetClear
}

// Now returns the current time formatted for the timestamp column.
func Now() string {
	return time.Now().UTC().Format(TimestampLayout)
}

func (img *Image) clone() *Image {
	c := *img
	return &c
}

func errInvalidResetPolicy(policy ResetPolicy) error {
	return fmt.Errorf("invalid reset policy: %q", policy)
}
