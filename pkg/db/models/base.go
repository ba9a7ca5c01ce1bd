package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ensureID assigns a v4 UUID when the caller did not pick one. IDs are
// generated in Go so SQLite and Postgres behave the same.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	ensureID(&o.ID)
	return nil
}

func (li *OrderLineItem) BeforeCreate(*gorm.DB) error {
	ensureID(&li.ID)
	return nil
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

func (e *OutboxEvent) BeforeCreate(*gorm.DB) error {
	ensureID(&e.ID)
	return nil
}

func (d *OutboxDLQ) BeforeCreate(*gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// All lists every persisted model; used by SQLite auto-migration and tests.
func All() []any {
	return []any{
		&User{},
		&Product{},
		&ProductVariant{},
		&Coupon{},
		&Order{},
		&OrderLineItem{},
		&InventoryTransaction{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
