// Package errors defines the error kinds returned by the coupon marketplace core.
// Callers match kinds with errors.Is against the sentinels and extract details
// with errors.As on the structured types.
package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = fmt.Errorf("not found")
	ErrAlreadyExists      = fmt.Errorf("already exists")
	ErrFieldNotMutable    = fmt.Errorf("field not mutable")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")
	ErrAlreadyPurchased   = fmt.Errorf("this coupon has already been purchased by this customer")
	ErrOutOfStock         = fmt.Errorf("coupon is out of stock")
	ErrDateExpired        = fmt.Errorf("coupon has expired")
	ErrPoolClosed         = fmt.Errorf("connection pool is closed")
	ErrStorage            = fmt.Errorf("storage failure")
	ErrInvalidInput       = fmt.Errorf("invalid input")
)

// Entity names the kind of record a NoSuchEntityError refers to.
type Entity string

const (
	Company  Entity = "company"
	Customer Entity = "customer"
	Coupon   Entity = "coupon"
)

// AlreadyExistsError reports a uniqueness violation on Field.
type AlreadyExistsError struct {
	Field string
	Value string
}

func (err *AlreadyExistsError) Error() string {
	return fmt.Sprintf("the value: %s, for column: %s, already exists in database", err.Value, err.Field)
}

func (err *AlreadyExistsError) Is(target error) bool { return target == ErrAlreadyExists }

// NoSuchEntityError reports an id lookup that matched nothing.
type NoSuchEntityError struct {
	Entity Entity
	ID     int64
}

func (err *NoSuchEntityError) Error() string {
	return fmt.Sprintf("no %s exists under id: %d", err.Entity, err.ID)
}

func (err *NoSuchEntityError) Is(target error) bool { return target == ErrNotFound }

// FieldNotMutableError reports an update that tried to change an immutable field.
type FieldNotMutableError struct {
	Field string
}

func (err *FieldNotMutableError) Error() string {
	return fmt.Sprintf("the field: '%s' cannot be changed", err.Field)
}

func (err *FieldNotMutableError) Is(target error) bool { return target == ErrFieldNotMutable }

// StorageError wraps an infrastructure failure raised while executing Op.
type StorageError struct {
	Op  string
	Err error
}

func (err *StorageError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStorage, err.Op, err.Err)
}

func (err *StorageError) Is(target error) bool { return target == ErrStorage }

func (err *StorageError) Unwrap() error { return err.Err }

func AlreadyExists(field, value string) error {
	return &AlreadyExistsError{Field: field, Value: value}
}

func NoSuchCompany(id int64) error {
	return &NoSuchEntityError{Entity: Company, ID: id}
}

func NoSuchCustomer(id int64) error {
	return &NoSuchEntityError{Entity: Customer, ID: id}
}

func NoSuchCoupon(id int64) error {
	return &NoSuchEntityError{Entity: Coupon, ID: id}
}

func FieldNotMutable(field string) error {
	return &FieldNotMutableError{Field: field}
}

// Storage wraps err as a StorageError unless it already carries a known kind.
func Storage(op string, err error) error {
	if err == nil || IsDomain(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// IsDomain reports whether err already belongs to one of the named kinds.
func IsDomain(err error) bool {
	for _, kind := range []error{
		ErrNotFound,
		ErrAlreadyExists,
		ErrFieldNotMutable,
		ErrInvalidCredentials,
		ErrAlreadyPurchased,
		ErrOutOfStock,
		ErrDateExpired,
		ErrPoolClosed,
		ErrStorage,
		ErrInvalidInput,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
