package domain

import "errors"

var (
	ErrCartNotFound       = errors.New("cart_not_found")
	ErrCartNotCompletable = errors.New("cart_not_completable")
	ErrOrderNotFound      = errors.New("order_not_found")
	ErrCollectionNotFound = errors.New("payment_collection_not_found")
	ErrPaymentNotFound    = errors.New("payment_not_found")
)
