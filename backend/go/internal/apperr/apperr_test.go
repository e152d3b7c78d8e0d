package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"validation", NewValidation("bad"), http.StatusBadRequest},
		{"unauthorized", NewUnauthorized("who"), http.StatusUnauthorized},
		{"forbidden", NewForbidden("no"), http.StatusForbidden},
		{"not found", NewNotFound("gone"), http.StatusNotFound},
		{"conflict", NewConflict("dup"), http.StatusConflict},
		{"unavailable", NewUnavailable(errors.New("llm down"), "llm"), http.StatusServiceUnavailable},
		{"rate", E(TooManyRequests, "slow down"), http.StatusTooManyRequests},
		{"plain", errors.New("boom"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("ctx: %w", NewNotFound("x")), http.StatusNotFound},
		{"gorm not found", gorm.ErrRecordNotFound, http.StatusNotFound},
		{"gorm duplicate", fmt.Errorf("insert: %w", gorm.ErrDuplicatedKey), http.StatusConflict},
		{"mysql duplicate", &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, http.StatusConflict},
		{"mysql fk", &mysql.MySQLError{Number: 1452, Message: "fk"}, http.StatusBadRequest},
		{"mysql referenced", &mysql.MySQLError{Number: 1451, Message: "ref"}, http.StatusConflict},
		{"mysql other", &mysql.MySQLError{Number: 1064, Message: "syntax"}, http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestMessageHidesInternalDetails(t *testing.T) {
	assert.Equal(t, "服务器内部错误", Message(errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.Equal(t, "案件不存在", Message(NewNotFound("案件不存在")))
	assert.Equal(t, "资源已存在", Message(gorm.ErrDuplicatedKey))
}

func TestErrorUnwrap(t *testing.T) {
	base := errors.New("root")
	err := Wrap(Unavailable, base, "esign")
	assert.ErrorIs(t, err, base)
	assert.Equal(t, "esign: root", err.Error())
	assert.True(t, Is(err, Unavailable))
	assert.False(t, Is(nil, Unavailable))
}

func TestFromDBKeepsAppErrors(t *testing.T) {
	orig := NewValidation("x")
	assert.Same(t, orig, FromDB(orig))
	assert.Nil(t, FromDB(nil))
}
