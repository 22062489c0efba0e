// Package models defines the core domain models of the coupon marketplace:
// companies that publish coupons, customers that purchase them, and the
// coupons themselves.
package models

import (
	"fmt"
	"time"
)

// Category is the fixed set of coupon categories.
type Category string

const (
	Food        Category = "FOOD"
	Electricity Category = "ELECTRICITY"
	Restaurant  Category = "RESTAURANT"
	Vacation    Category = "VACATION"
)

// categories is ordered by persisted category id, starting at 1.
var categories = []Category{Food, Electricity, Restaurant, Vacation}

// ID returns the persisted category id, or 0 for an unknown category.
func (c Category) ID() int {
	for i, category := range categories {
		if category == c {
			return i + 1
		}
	}
	return 0
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return c.ID() != 0
}

// CategoryFromID maps a persisted category id back to its Category.
func CategoryFromID(id int) (Category, error) {
	if id < 1 || id > len(categories) {
		return "", fmt.Errorf("unknown category id %d", id)
	}
	return categories[id-1], nil
}

// Company is a coupon publisher. Name and Email are immutable once created.
type Company struct {
	// ID is assigned by storage on creation.
	ID       int64
	Name     string
	Email    string
	Password string
	// Coupons is derived from the coupons table, never stored on the company.
	Coupons []Coupon
}

// Customer is a coupon buyer.
type Customer struct {
	ID        int64
	FirstName string
	LastName  string
	Email     string
	Password  string
	// Coupons lists the coupons this customer purchased.
	Coupons []Coupon
}

// Coupon is a discount offer published by a company.
type Coupon struct {
	ID          int64
	CompanyID   int64
	Category    Category
	Title       string
	Description string
	StartDate   time.Time
	EndDate     time.Time
	// Amount is the remaining stock; it never drops below zero.
	Amount int
	Price  float64
	Image  string
}

// Expired reports whether the coupon's end date lies before the calendar day of now.
// Dates are compared in UTC.
func (c *Coupon) Expired(now time.Time) bool {
	return Date(c.EndDate).Before(Date(now))
}

// Date truncates t to midnight UTC of its calendar day.
func Date(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// CouponFilter narrows coupon listings. Nil fields do not filter.
type CouponFilter struct {
	Category *Category
	MaxPrice *float64
}
