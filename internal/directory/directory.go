// Package directory defines the contact lookup consulted before any call is
// classified or screened.
package directory

import (
	"context"

	"github.com/chadiek/callscreen/internal/phone"
)

// Lookup answers whether a number belongs to a known contact.
type Lookup interface {
	IsKnown(ctx context.Context, number phone.Number) (bool, error)
	DisplayName(ctx context.Context, number phone.Number) (string, bool, error)
}
