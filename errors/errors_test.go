package errors_test

import (
	"syscall"
	"testing"

	nufserrors "github.com/mlhaufe/nufs/errors"
	"github.com/stretchr/testify/assert"
)

func TestDriverErrorWithMessage(t *testing.T) {
	err := nufserrors.NewDriverErrorWithMessage(syscall.ENOSPC, "directory block is full")
	assert.Equal(t, "no space left on device: directory block is full", err.Error())
	assert.Equal(t, syscall.ENOSPC, err.Errno())
}

func TestDriverErrorDefaultMessage(t *testing.T) {
	err := nufserrors.NewDriverError(syscall.ENOENT)
	assert.Equal(t, syscall.ENOENT.Error(), err.Error())
}

func TestShorthandConstructors(t *testing.T) {
	assert.Equal(t, syscall.EEXIST, nufserrors.Exists("").Errno())
	assert.Equal(t, syscall.ENOTEMPTY, nufserrors.NotEmpty("directory not empty").Errno())
}

func TestErrnoExtractsUnderlyingCode(t *testing.T) {
	err := nufserrors.NotFound("/missing")
	assert.Equal(t, syscall.ENOENT, nufserrors.Errno(err))
	assert.Equal(t, syscall.EIO, nufserrors.Errno(assert.AnError))
	assert.Equal(t, syscall.Errno(0), nufserrors.Errno(nil))
}
