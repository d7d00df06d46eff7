package model

import (
	"fmt"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// Validate checks the struct tags of a transaction.
func (t *Transaction) Validate() error {
	if err := validatorInstance().Struct(t); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}
	return nil
}

// Validate checks the struct tags of a user.
func (u *User) Validate() error {
	if err := validatorInstance().Struct(u); err != nil {
		return fmt.Errorf("invalid user: %w", err)
	}
	return nil
}
