package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew_SetsCodeAndMessage(t *testing.T) {
	err := New(ErrCodeParse, "summary table not found")
	assert.Equal(t, ErrCodeParse, err.Code)
	assert.Equal(t, "[PIPE_003] summary table not found", err.Error())
	assert.NotEmpty(t, err.Stack)
}

func TestError_IncludesDetail(t *testing.T) {
	err := New(ErrCodeFetch, "portal returned 404").WithDetail("humId=hum0001")
	assert.Equal(t, "[PIPE_002] portal returned 404: humId=hum0001", err.Error())
}

func TestWrap_NilIsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrCodeIndexIO, "write failed"))
}

func TestWrap_PreservesCause(t *testing.T) {
	cause := stderrors.New("connection reset")
	err := Wrap(cause, ErrCodeFetch, "fetch failed")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, cause, stderrors.Unwrap(err))
}

func TestIsCode_TraversesChain(t *testing.T) {
	inner := New(ErrCodeIndexConflict, "stale seq_no")
	outer := fmt.Errorf("updating research: %w", inner)
	assert.True(t, IsCode(outer, ErrCodeIndexConflict))
	assert.False(t, IsCode(outer, ErrCodeIndexIO))
}

func TestIsConflict(t *testing.T) {
	assert.True(t, IsConflict(New(ErrCodeIndexConflict, "stale")))
	assert.True(t, IsConflict(New(ErrCodeConflict, "duplicate")))
	assert.False(t, IsConflict(New(ErrCodeIndexIO, "io")))
	assert.False(t, IsConflict(nil))
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, ErrorCode(""), GetCode(nil))
	assert.Equal(t, ErrCodeICD10Violation, GetCode(New(ErrCodeICD10Violation, "bad label")))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, 400, ErrCodeBadRequest.HTTPStatus())
	assert.Equal(t, 400, ErrCodeValidation.HTTPStatus())
	assert.Equal(t, 404, ErrCodeDocumentNotFound.HTTPStatus())
	assert.Equal(t, 409, ErrCodeIndexConflict.HTTPStatus())
	assert.Equal(t, 500, ErrCodeInternal.HTTPStatus())
}
