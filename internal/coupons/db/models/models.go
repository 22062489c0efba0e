// Package models contains the persistence records of the marketplace,
// configured to work using GORM as the ORM.
package models

import (
	"time"
)

// Company is a row of the companies table. Name and email are each unique.
type Company struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	Name     string `gorm:"size:100;not null;uniqueIndex"`
	Email    string `gorm:"size:255;not null;uniqueIndex"`
	Password string `gorm:"size:255;not null"`
}

func (Company) TableName() string { return "companies" }

// Customer is a row of the customers table. Email is unique.
type Customer struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	FirstName string `gorm:"size:100"`
	LastName  string `gorm:"size:100"`
	Email     string `gorm:"size:255;not null;uniqueIndex"`
	Password  string `gorm:"size:255;not null"`
}

func (Customer) TableName() string { return "customers" }

// Coupon is a row of the coupons table. Title is unique per owning company,
// and amount can never be stored negative.
type Coupon struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	CompanyID   int64     `gorm:"not null;index;uniqueIndex:idx_coupons_title_company,priority:2"`
	CategoryID  int       `gorm:"not null"`
	Title       string    `gorm:"size:255;not null;uniqueIndex:idx_coupons_title_company,priority:1"`
	Description string    `gorm:"size:3000"`
	StartDate   time.Time `gorm:"not null"`
	EndDate     time.Time `gorm:"not null;index"`
	Amount      int       `gorm:"not null;check:amount >= 0"`
	Price       float64   `gorm:"not null"`
	Image       string    `gorm:"size:1024"`
}

func (Coupon) TableName() string { return "coupons" }

// Purchase records that a customer bought a coupon; one row per pair.
type Purchase struct {
	CustomerID int64 `gorm:"primaryKey;autoIncrement:false"`
	CouponID   int64 `gorm:"primaryKey;autoIncrement:false;index"`
}

func (Purchase) TableName() string { return "purchases" }

// All lists every record type in creation order, for migrations.
func All() []interface{} {
	return []interface{}{&Company{}, &Customer{}, &Coupon{}, &Purchase{}}
}
