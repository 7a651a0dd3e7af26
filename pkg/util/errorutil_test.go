package util

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/student-service/internal/repository"
)

func TestToDomainError(t *testing.T) {
	assert.Nil(t, ToDomainError(nil))

	unauthorized := ToDomainError(NewUnauthorized("invalid token"))
	assert.Equal(t, http.StatusUnauthorized, unauthorized.HTTPStatus)
	assert.Equal(t, "UNAUTHORIZED", unauthorized.Code)

	wrapped := ToDomainError(fmt.Errorf("lookup: %w", repository.ErrNotFound))
	assert.Equal(t, http.StatusNotFound, wrapped.HTTPStatus)

	noRows := ToDomainError(pgx.ErrNoRows)
	assert.Equal(t, "NOT_FOUND", noRows.Code)

	fe := ToDomainError(fiber.NewError(http.StatusBadRequest, "invalid payload"))
	assert.Equal(t, http.StatusBadRequest, fe.HTTPStatus)
	assert.Equal(t, "BAD_REQUEST", fe.Code)
	assert.Equal(t, "invalid payload", fe.Message)

	internal := ToDomainError(errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, internal.HTTPStatus)
	assert.Equal(t, "internal server error", internal.Message)
	assert.ErrorContains(t, internal, "boom")
}

func TestTooManyRequests(t *testing.T) {
	de := ToDomainError(NewTooManyRequests("slow down"))
	assert.Equal(t, http.StatusTooManyRequests, de.HTTPStatus)
	assert.Equal(t, "TOO_MANY_REQUESTS", de.Code)
}
