package verified

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/code-payments/purchase-engine/model"
)

var (
	ErrNotFound = errors.New("verified receipt not found")
)

// Record is the persisted projection of one verified product. Data holds the
// raw validation response data as returned by the authority, so replaying a
// record does not lose server-only fields.
type Record struct {
	Platform  model.Platform
	ProductID string
	Data      json.RawMessage
	UpdatedAt time.Time
}

type Store interface {
	// Put creates or updates the record for (platform, product id).
	Put(ctx context.Context, record *Record) error

	// Get returns the record for (platform, product id), or ErrNotFound.
	Get(ctx context.Context, platform model.Platform, productID string) (*Record, error)

	// List returns every record for a platform, most recently updated last.
	List(ctx context.Context, platform model.Platform) ([]*Record, error)
}

func (r *Record) Clone() *Record {
	data := make(json.RawMessage, len(r.Data))
	copy(data, r.Data)
	return &Record{
		Platform:  r.Platform,
		ProductID: r.ProductID,
		Data:      data,
		UpdatedAt: r.UpdatedAt,
	}
}
