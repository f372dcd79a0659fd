// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package tifs

import (
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hexilee/tifs/internal/store"
)

func TestErrnoMapping(t *testing.T) {
	testCases := []struct {
		err   error
		errno syscall.Errno
	}{
		{errUnimplemented(), syscall.ENOSYS},
		{errNameTooLong("n"), syscall.ENAMETOOLONG},
		{errFileNotFound("f"), syscall.ENOENT},
		{errFileExist("f"), syscall.EEXIST},
		{errInodeNotFound(3), syscall.EFAULT},
		{errFhNotFound(3, 1), syscall.EBADF},
		{errInvalidOffset(3, -1), syscall.EINVAL},
		{errUnknownWhence(9), syscall.EINVAL},
		{errBlockNotFound(3, 0), syscall.EINVAL},
		{errDirNotEmpty("d"), syscall.ENOTEMPTY},
		{errUnknownFileType(0), syscall.EINVAL},
		{errKeyError(errors.New("conflict")), syscall.EAGAIN},
		{errRetryTimesExcess(10), syscall.EAGAIN},
		{errInvalidLock(), syscall.EFAULT},
		{errBlockSizeConflict(4096, 8192), syscall.EINVAL},
		{errNoSpaceLeft(1 << 20), syscall.ENOSPC},
		{errSerialize("meta", Encoding, errors.New("bad")), syscall.EFAULT},
		{errInvalidScopedKey([]byte{9}), syscall.EFAULT},
		{errUnknown(errors.New("boom")), syscall.EFAULT},
		{errors.New("some foreign error"), syscall.EFAULT},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.errno, ToErrno(tc.err), "%v", tc.err)
	}
}

func TestKindOfUnwraps(t *testing.T) {
	err := fmt.Errorf("outer: %w", errFileNotFound("f"))
	assert.Equal(t, KindFileNotFound, KindOf(err))

	// Raw store conflicts classify as retryable key errors even when the
	// engine never wrapped them.
	conflict := store.NewConflictError(errors.New("write conflict"))
	assert.Equal(t, KindKeyError, KindOf(conflict))
	assert.Equal(t, syscall.EAGAIN, ToErrno(conflict))
}

func TestErrorMessageCarriesCause(t *testing.T) {
	cause := errors.New("bad varint")
	err := errSerialize("inode", Encoding, cause)
	assert.Contains(t, err.Error(), "inode")
	assert.Contains(t, err.Error(), Encoding)
	assert.ErrorIs(t, err, cause)
}
