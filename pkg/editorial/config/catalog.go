package config

import (
	"context"

	"github.com/google/uuid"

	"github.com/newsroomkit/editorial/pkg/editorial"
)

// SlotDef describes one layout slot for the static catalog. A slot belongs to
// a section and optionally narrows to a category or item type; featured slots
// are only resolved for featured placements.
type SlotDef struct {
	ID         uuid.UUID  `json:"id"`
	SectionID  uuid.UUID  `json:"section_id"`
	CategoryID *uuid.UUID `json:"category_id,omitempty"`
	ItemTypeID *uuid.UUID `json:"item_type_id,omitempty"`
	Featured   bool       `json:"featured"`
}

// staticCatalog is a fixed-slot SlotCatalog for deployments without an
// external layout service.
type staticCatalog struct {
	slots []SlotDef
}

// NewStaticCatalog builds a SlotCatalog over a fixed slot list.
func NewStaticCatalog(slots []SlotDef) editorial.SlotCatalog {
	return staticCatalog{slots: slots}
}

func (c staticCatalog) ResolveSlots(ctx context.Context, criteria editorial.PublishCriteria) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for _, slot := range c.slots {
		if slot.SectionID != criteria.SectionID {
			continue
		}
		if slot.CategoryID != nil {
			if criteria.CategoryID == nil || *slot.CategoryID != *criteria.CategoryID {
				continue
			}
		}
		if slot.ItemTypeID != nil {
			if criteria.ItemTypeID == nil || *slot.ItemTypeID != *criteria.ItemTypeID {
				continue
			}
		}
		if slot.Featured && !criteria.IsFeatured {
			continue
		}
		ids = append(ids, slot.ID)
	}
	return ids, nil
}

func (c staticCatalog) SlotExists(ctx context.Context, slotID uuid.UUID) (bool, error) {
	for _, slot := range c.slots {
		if slot.ID == slotID {
			return true, nil
		}
	}
	return false, nil
}
