package domain

import (
	"errors"
	"time"
)

var (
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidDate  = errors.New("invalid date")
	ErrUnauthorized = errors.New("unauthorized")
	ErrConflict     = errors.New("conflict")
	// ErrCorruptTimestamp хранилище вернуло время, которое нельзя представить как instant
	ErrCorruptTimestamp = errors.New("unrepresentable stored timestamp")
)

// IsClientError true для ошибок, вызванных некорректным запросом
func IsClientError(err error) bool {
	return errors.Is(err, ErrBadRequest) || errors.Is(err, ErrInvalidDate)
}

// InstantFormat каноническое строковое представление instant на границе сервиса
const InstantFormat = time.RFC3339Nano

// FormatInstant приводит время к каноническому виду
func FormatInstant(t time.Time) string {
	return t.UTC().Format(InstantFormat)
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}
