package crawler

import "errors"

var (
	// ErrNoTotal signals a first listing page without a readable item count.
	ErrNoTotal = errors.New("listing page has no item count")
	// ErrEmptyPage signals a listing page that returned no items.
	ErrEmptyPage = errors.New("listing page returned no items")
	// ErrEmptyLink signals a listing entry or detail request without a link.
	ErrEmptyLink = errors.New("item has no link")
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")
)
