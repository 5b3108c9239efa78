package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/chadiek/callscreen/internal/models"
	"github.com/chadiek/callscreen/internal/phone"
)

// Contacts answers directory lookups from the contacts table.
type Contacts struct {
	store *Store
}

// Contacts returns the directory view of the store.
func (s *Store) Contacts() *Contacts { return &Contacts{store: s} }

// Add inserts or renames a contact.
func (c *Contacts) Add(ctx context.Context, number phone.Number, name string) error {
	if !number.Valid() {
		return fmt.Errorf("store: invalid contact number %q", number)
	}
	err := c.store.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "phone_number"}},
		DoUpdates: clause.AssignmentColumns([]string{"display_name"}),
	}).Create(&models.Contact{PhoneNumber: number, DisplayName: name}).Error
	if err != nil {
		return fmt.Errorf("store: add contact %s: %w", number, err)
	}
	return nil
}

// Remove deletes a contact.
func (c *Contacts) Remove(ctx context.Context, number phone.Number) error {
	res := c.store.db.WithContext(ctx).Where("phone_number = ?", number).Delete(&models.Contact{})
	if res.Error != nil {
		return fmt.Errorf("store: remove contact %s: %w", number, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all contacts ordered by name.
func (c *Contacts) List(ctx context.Context) ([]models.Contact, error) {
	var out []models.Contact
	if err := c.store.db.WithContext(ctx).Order("display_name").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("store: list contacts: %w", err)
	}
	return out, nil
}

// IsKnown reports whether number is in the directory.
func (c *Contacts) IsKnown(ctx context.Context, number phone.Number) (bool, error) {
	var n int64
	if err := c.store.db.WithContext(ctx).Model(&models.Contact{}).Where("phone_number = ?", number).Count(&n).Error; err != nil {
		return false, fmt.Errorf("store: lookup %s: %w", number, err)
	}
	return n > 0, nil
}

// DisplayName returns the contact's name, if the number is known.
func (c *Contacts) DisplayName(ctx context.Context, number phone.Number) (string, bool, error) {
	var ct models.Contact
	err := c.store.db.WithContext(ctx).Where("phone_number = ?", number).First(&ct).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("store: display name %s: %w", number, err)
	}
	return ct.DisplayName, true, nil
}
