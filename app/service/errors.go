package service

import "errors"

var (
	ErrInvalidRequest      = errors.New("invalid request")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrNotFound            = errors.New("not found")
	ErrPlanNotFound        = errors.New("plan not found")
	ErrAccessCodeExhausted = errors.New("could not allocate a unique access code")
	ErrReconcileConflict   = errors.New("payment kept changing during reconciliation")
)
