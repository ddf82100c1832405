package domain

import (
	"context"
	"errors"
)

type CreateAccountRequest struct {
	Name            string
	Email           string
	PlanCode        string
	PaymentTermDays int
}

type UpdateAccountRequest struct {
	PaymentTermDays *int
	PlanCode        *string
}

type Service interface {
	Create(context.Context, CreateAccountRequest) (Account, error)
	Get(context.Context) (Account, error)
	Update(context.Context, UpdateAccountRequest) (Account, error)
}

var (
	ErrInvalidAccount     = errors.New("invalid_account")
	ErrInvalidName        = errors.New("invalid_name")
	ErrInvalidEmail       = errors.New("invalid_email")
	ErrInvalidPaymentTerm = errors.New("invalid_payment_term")
	ErrNotFound           = errors.New("not_found")
)
