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

	"github.com/hexilee/tifs/internal/store"
)

// Kind enumerates the stable failure classes of the engine. Every error the
// engine returns carries one, and the fuse adapter maps each to an errno.
type Kind int

const (
	KindUnknown Kind = iota
	KindUnimplemented
	KindInvalidScopedKey
	KindSerialize
	KindNameTooLong
	KindFileNotFound
	KindFileExist
	KindInodeNotFound
	KindFhNotFound
	KindInvalidOffset
	KindUnknownWhence
	KindBlockNotFound
	KindDirNotEmpty
	KindUnknownFileType
	KindKeyError
	KindRetryTimesExcess
	KindInvalidLock
	KindBlockSizeConflict
	KindNoSpaceLeft
)

// Error is the engine's error type.
type Error struct {
	Kind  Kind
	msg   string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.msg, e.cause)
	}
	return e.msg
}

func (e *Error) Unwrap() error { return e.cause }

// KindOf extracts the failure class of err. Conflict errors from the store
// classify as KindKeyError even when they were never wrapped by the engine.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	if store.IsConflict(err) {
		return KindKeyError
	}
	return KindUnknown
}

// ToErrno maps err to the errno used in the kernel reply.
func ToErrno(err error) syscall.Errno {
	switch KindOf(err) {
	case KindUnimplemented:
		return syscall.ENOSYS
	case KindNameTooLong:
		return syscall.ENAMETOOLONG
	case KindFileNotFound:
		return syscall.ENOENT
	case KindFileExist:
		return syscall.EEXIST
	case KindInodeNotFound:
		return syscall.EFAULT
	case KindFhNotFound:
		return syscall.EBADF
	case KindInvalidOffset, KindUnknownWhence, KindBlockNotFound,
		KindUnknownFileType, KindBlockSizeConflict:
		return syscall.EINVAL
	case KindDirNotEmpty:
		return syscall.ENOTEMPTY
	case KindKeyError, KindRetryTimesExcess:
		return syscall.EAGAIN
	case KindNoSpaceLeft:
		return syscall.ENOSPC
	default:
		return syscall.EFAULT
	}
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, msg: msg}
}

func errUnimplemented() error {
	return newError(KindUnimplemented, "unimplemented")
}

func errInvalidScopedKey(key []byte) error {
	return newError(KindInvalidScopedKey, fmt.Sprintf("invalid scoped key: %v", key))
}

func errSerialize(target, codec string, cause error) error {
	return &Error{
		Kind:  KindSerialize,
		msg:   fmt.Sprintf("fail to serialize/deserialize %s as %s", target, codec),
		cause: cause,
	}
}

func errNameTooLong(name string) error {
	return newError(KindNameTooLong, fmt.Sprintf("name of file(%s) is too long", name))
}

func errFileNotFound(name string) error {
	return newError(KindFileNotFound, fmt.Sprintf("cannot find path(%s)", name))
}

func errFileExist(name string) error {
	return newError(KindFileExist, fmt.Sprintf("file(%s) already exist", name))
}

func errInodeNotFound(ino uint64) error {
	return newError(KindInodeNotFound, fmt.Sprintf("cannot find inode(%d)", ino))
}

func errFhNotFound(ino, fh uint64) error {
	return newError(KindFhNotFound, fmt.Sprintf("cannot find handle %d(%d)", ino, fh))
}

func errInvalidOffset(ino uint64, offset int64) error {
	return newError(KindInvalidOffset, fmt.Sprintf("invalid offset(%d) of ino(%d)", offset, ino))
}

func errUnknownWhence(whence int32) error {
	return newError(KindUnknownWhence, fmt.Sprintf("unknown whence(%d)", whence))
}

func errBlockNotFound(ino, block uint64) error {
	return newError(KindBlockNotFound, fmt.Sprintf("cannot find block(<%d>[%d])", ino, block))
}

func errDirNotEmpty(name string) error {
	return newError(KindDirNotEmpty, fmt.Sprintf("dir(%s) not empty", name))
}

func errUnknownFileType(mode uint32) error {
	return newError(KindUnknownFileType, fmt.Sprintf("unknown file type in mode(%#o)", mode))
}

func errKeyError(cause error) error {
	return &Error{Kind: KindKeyError, msg: "key error", cause: cause}
}

func errRetryTimesExcess(times uint64) error {
	return newError(KindRetryTimesExcess, fmt.Sprintf("excess max retry times: %d", times))
}

func errInvalidLock() error {
	return newError(KindInvalidLock, "invalid lock")
}

func errBlockSizeConflict(configured, stored uint64) error {
	return newError(KindBlockSizeConflict,
		fmt.Sprintf("block size %d conflicts with stored block size %d", configured, stored))
}

func errNoSpaceLeft(size uint64) error {
	return newError(KindNoSpaceLeft, fmt.Sprintf("no space left, filesystem size %d", size))
}

func errUnknown(cause error) error {
	return &Error{Kind: KindUnknown, msg: "unknown error", cause: cause}
}
