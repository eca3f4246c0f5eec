/**
 * @description
 * Engine-level error taxonomy. Store-level sentinels (not-found variants,
 * ErrIntegrityViolation) live in the store package; these cover validation
 * failures raised by the engine itself.
 */

package app

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDepositBelowMinimum = errors.New("deposit below minimum qualifying amount")
	ErrInsufficientBalance = errors.New("insufficient available balance")
)
