package utils

import errors "github.com/go-errors/errors"

var (
	InvalidArgError = errors.New("InvalidArgError")
)
