package errs

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

var ErrAlreadyExists = errors.New("already exists")

var ErrInternal = errors.New("internal error")

var ErrValidation = errors.New("validation error")

var ErrEmptySymbol = fmt.Errorf("%w: symbol is empty", ErrValidation)

var ErrInvalidAmount = fmt.Errorf("%w: invalid amount", ErrValidation)

var ErrInvalidIndex = fmt.Errorf("%w: asset index out of range", ErrValidation)

var ErrSymbolNotFound = errors.New("symbol not found")

var ErrPriceUnavailable = errors.New("price unavailable")

var ErrMarketDataUnavailable = errors.New("market data unavailable")

var ErrStorageUnavailable = errors.New("storage unavailable")

var ErrInvalidCredentials = errors.New("invalid credentials")

var ErrInvalidToken = errors.New("invalid token")
