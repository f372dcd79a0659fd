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
	"os"

	"golang.org/x/sys/unix"
)

// FileKind extracts the file type from a raw mode word.
func FileKind(mode uint32) (FileType, error) {
	switch mode & unix.S_IFMT {
	case unix.S_IFREG:
		return RegularFile, nil
	case unix.S_IFLNK:
		return Symlink, nil
	case unix.S_IFDIR:
		return Directory, nil
	case unix.S_IFIFO:
		return NamedPipe, nil
	case unix.S_IFBLK:
		return BlockDevice, nil
	case unix.S_IFCHR:
		return CharDevice, nil
	case unix.S_IFSOCK:
		return Socket, nil
	}
	return RegularFile, errUnknownFileType(mode)
}

// FilePerm extracts the permission bits from a raw mode word, dropping the
// setuid/setgid bits the way the engine stores perms.
func FilePerm(mode uint32) uint16 {
	return uint16(mode &^ (unix.S_ISUID | unix.S_ISGID) & 0xfff)
}

// MakeMode combines a file type and permission bits into a raw mode word.
func MakeMode(kind FileType, perm uint16) uint32 {
	var typ uint32
	switch kind {
	case RegularFile:
		typ = unix.S_IFREG
	case Symlink:
		typ = unix.S_IFLNK
	case Directory:
		typ = unix.S_IFDIR
	case NamedPipe:
		typ = unix.S_IFIFO
	case BlockDevice:
		typ = unix.S_IFBLK
	case CharDevice:
		typ = unix.S_IFCHR
	case Socket:
		typ = unix.S_IFSOCK
	}
	return typ | uint32(perm)
}

// OSFileMode converts a kind and perm into an os.FileMode for the kernel
// reply.
func OSFileMode(kind FileType, perm uint16) os.FileMode {
	mode := os.FileMode(perm & 0o777)
	if perm&uint16(unix.S_ISVTX) != 0 {
		mode |= os.ModeSticky
	}
	switch kind {
	case Directory:
		mode |= os.ModeDir
	case Symlink:
		mode |= os.ModeSymlink
	case NamedPipe:
		mode |= os.ModeNamedPipe
	case BlockDevice:
		mode |= os.ModeDevice
	case CharDevice:
		mode |= os.ModeDevice | os.ModeCharDevice
	case Socket:
		mode |= os.ModeSocket
	}
	return mode
}

// KindFromOSMode converts an os.FileMode into the stored file type.
func KindFromOSMode(mode os.FileMode) FileType {
	switch {
	case mode.IsDir():
		return Directory
	case mode&os.ModeSymlink != 0:
		return Symlink
	case mode&os.ModeNamedPipe != 0:
		return NamedPipe
	case mode&os.ModeCharDevice != 0:
		return CharDevice
	case mode&os.ModeDevice != 0:
		return BlockDevice
	case mode&os.ModeSocket != 0:
		return Socket
	default:
		return RegularFile
	}
}
