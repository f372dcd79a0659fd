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
	"context"
	"time"

	"golang.org/x/sys/unix"

	"github.com/hexilee/tifs/internal/logger"
)

// DirParent is the conventional parent-pointer entry name of a directory.
// Listings never store it; rename re-links it only when some earlier mount
// materialized one.
const DirParent = ".."

func checkFileName(name string) error {
	if uint32(len(name)) > MaxNameLen {
		return errNameTooLong(name)
	}
	return nil
}

// Init validates the stored block size against this mount's configuration
// and creates the root directory on first mount.
func (fs *TiFS) Init(ctx context.Context, uid, gid uint32) error {
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		var done struct{}
		meta, err := txn.ReadMeta(ctx)
		if err != nil {
			return done, err
		}
		if meta != nil && meta.BlockSize != txn.BlockSize() {
			err := errBlockSizeConflict(txn.BlockSize(), meta.BlockSize)
			logger.Errorf("%v", err)
			return done, err
		}

		_, err = txn.ReadInode(ctx, RootInode)
		if err == nil {
			return done, nil
		}
		if KindOf(err) != KindInodeNotFound {
			return done, err
		}

		inode, err := txn.Mkdir(ctx, 0, "", 0o777, uid, gid)
		if err != nil {
			return done, err
		}
		logger.Debugf("made root directory ino(%d)", inode.Ino)
		return done, nil
	})
	return err
}

// Lookup resolves name under parent.
func (fs *TiFS) Lookup(ctx context.Context, parent uint64, name string) (*Entry, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	return spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Entry, error) {
		ino, err := txn.Lookup(ctx, parent, name)
		if err != nil {
			return nil, err
		}
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return nil, err
		}
		return &Entry{Stat: inode}, nil
	})
}

// GetAttr returns the attributes of ino.
func (fs *TiFS) GetAttr(ctx context.Context, ino uint64) (*Attr, error) {
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		return txn.ReadInode(ctx, ino)
	})
	if err != nil {
		return nil, err
	}
	return &Attr{Stat: inode}, nil
}

// TimeOrNow is a setattr timestamp: either a specific time or "now".
type TimeOrNow struct {
	Now  bool
	Time time.Time
}

// SetAttrParams carries the fields a setattr request wants changed; nil
// fields keep their current value.
type SetAttrParams struct {
	Mode   *uint32
	Uid    *uint32
	Gid    *uint32
	Size   *uint64
	Atime  *TimeOrNow
	Mtime  *TimeOrNow
	Ctime  *time.Time
	Crtime *time.Time
	Flags  *uint32
}

// SetAttr merges the provided fields into the inode. A size change truncates
// or extends the file and bumps mtime+ctime; a pure atime update leaves
// ctime alone.
func (fs *TiFS) SetAttr(ctx context.Context, ino uint64, params SetAttrParams) (*Attr, error) {
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return nil, err
		}

		if params.Mode != nil {
			inode.Perm = FilePerm(*params.Mode)
		}
		if params.Uid != nil {
			inode.Uid = *params.Uid
		}
		if params.Gid != nil {
			inode.Gid = *params.Gid
		}

		now := fs.clock.Now()
		if params.Size != nil && *params.Size != inode.Size {
			if inode.InlineData == nil && *params.Size < inode.Size {
				if err := txn.TruncateBlocks(ctx, inode, *params.Size); err != nil {
					return nil, err
				}
			}
			if inode.InlineData != nil {
				switch {
				case *params.Size < inode.Size:
					inode.InlineData = inode.InlineData[:*params.Size]
				case *params.Size <= txn.inlineThreshold():
					grown := make([]byte, *params.Size)
					copy(grown, inode.InlineData)
					inode.InlineData = grown
				default:
					if err := txn.transferInlineDataToBlock(inode); err != nil {
						return nil, err
					}
				}
			}
			inode.SetSize(*params.Size, txn.BlockSize())
			inode.Mtime = now.UnixNano()
			inode.Ctime = now.UnixNano()
		}
		if params.Atime != nil {
			if params.Atime.Now {
				inode.Atime = now.UnixNano()
			} else {
				inode.Atime = params.Atime.Time.UnixNano()
			}
		}
		if params.Mtime != nil {
			if params.Mtime.Now {
				inode.Mtime = now.UnixNano()
			} else {
				inode.Mtime = params.Mtime.Time.UnixNano()
			}
			inode.Ctime = now.UnixNano()
		}
		if params.Ctime != nil {
			inode.Ctime = params.Ctime.UnixNano()
		}
		if params.Crtime != nil {
			inode.Crtime = params.Crtime.UnixNano()
		}
		if params.Flags != nil {
			inode.Flags = *params.Flags
		}

		if err := txn.SaveInode(inode); err != nil {
			return nil, err
		}
		return inode, nil
	})
	if err != nil {
		return nil, err
	}
	return &Attr{Stat: inode}, nil
}

// ReadDir lists ino from offset onward.
func (fs *TiFS) ReadDir(ctx context.Context, ino uint64, offset int) (*DirReply, error) {
	dir, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (Dir, error) {
		return txn.ReadDir(ctx, ino)
	})
	if err != nil {
		return nil, err
	}
	reply := &DirReply{Offset: offset}
	if offset < len(dir) {
		reply.Items = dir[offset:]
	}
	return reply, nil
}

// ReadDirPlus lists ino from offset onward with full attributes.
func (fs *TiFS) ReadDirPlus(ctx context.Context, ino uint64, offset int) (*DirPlusReply, error) {
	return spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*DirPlusReply, error) {
		dir, err := txn.ReadDir(ctx, ino)
		if err != nil {
			return nil, err
		}
		reply := &DirPlusReply{Offset: offset}
		for i := offset; i < len(dir); i++ {
			inode, err := txn.ReadInode(ctx, dir[i].Ino)
			if err != nil {
				return nil, err
			}
			reply.Items = append(reply.Items, DirPlusItem{
				Item:  dir[i],
				Entry: Entry{Stat: inode},
			})
		}
		return reply, nil
	})
}

// Open allocates a file handle on ino.
func (fs *TiFS) Open(ctx context.Context, ino uint64) (*Open, error) {
	fh, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (uint64, error) {
		return txn.Open(ctx, ino)
	})
	if err != nil {
		return nil, err
	}
	return &Open{Fh: fh}, nil
}

// Release closes a file handle.
func (fs *TiFS) Release(ctx context.Context, ino, fh uint64) error {
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		return struct{}{}, txn.Close(ctx, ino, fh)
	})
	return err
}

// Read reads size bytes at the handle cursor plus offset.
func (fs *TiFS) Read(ctx context.Context, ino, fh uint64, offset int64, size uint32) (*Data, error) {
	data, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) ([]byte, error) {
		return txn.Read(ctx, ino, fh, offset, size)
	})
	if err != nil {
		return nil, err
	}
	return &Data{Data: data}, nil
}

// Write writes data at the handle cursor plus offset.
func (fs *TiFS) Write(ctx context.Context, ino, fh uint64, offset int64, data []byte) (*Write, error) {
	size, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (int, error) {
		return txn.Write(ctx, ino, fh, offset, data)
	})
	if err != nil {
		return nil, err
	}
	return &Write{Size: uint32(size)}, nil
}

// MkDir creates a directory.
func (fs *TiFS) MkDir(ctx context.Context, parent uint64, name string, mode uint32, uid, gid uint32) (*Entry, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		return txn.Mkdir(ctx, parent, name, mode, uid, gid)
	})
	if err != nil {
		return nil, err
	}
	return &Entry{Stat: inode}, nil
}

// RmDir removes an empty directory.
func (fs *TiFS) RmDir(ctx context.Context, parent uint64, name string) error {
	if err := checkFileName(name); err != nil {
		return err
	}
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		return struct{}{}, txn.Rmdir(ctx, parent, name)
	})
	return err
}

// MkNod creates a file node of any kind.
func (fs *TiFS) MkNod(ctx context.Context, parent uint64, name string, mode uint32, uid, gid, rdev uint32) (*Entry, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		return txn.MakeInode(ctx, parent, name, mode, uid, gid, rdev)
	})
	if err != nil {
		return nil, err
	}
	return &Entry{Stat: inode}, nil
}

// Create is mknod followed by open.
func (fs *TiFS) Create(ctx context.Context, parent uint64, name string, mode uint32, uid, gid uint32) (*Create, error) {
	entry, err := fs.MkNod(ctx, parent, name, mode, uid, gid, 0)
	if err != nil {
		return nil, err
	}
	open, err := fs.Open(ctx, entry.Stat.Ino)
	if err != nil {
		return nil, err
	}
	return &Create{
		Stat:       entry.Stat,
		Generation: entry.Generation,
		Fh:         open.Fh,
		Flags:      open.Flags,
	}, nil
}

// Link makes ino visible under (newParent, newName).
func (fs *TiFS) Link(ctx context.Context, ino, newParent uint64, newName string) (*Entry, error) {
	if err := checkFileName(newName); err != nil {
		return nil, err
	}
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		return txn.Link(ctx, ino, newParent, newName)
	})
	if err != nil {
		return nil, err
	}
	return &Entry{Stat: inode}, nil
}

// Unlink removes (parent, name).
func (fs *TiFS) Unlink(ctx context.Context, parent uint64, name string) error {
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		return struct{}{}, txn.Unlink(ctx, parent, name)
	})
	return err
}

// Rename moves (parent, name) to (newParent, newName) in one transaction.
// For directories the conventional parent pointer is re-linked when one was
// materialized.
func (fs *TiFS) Rename(ctx context.Context, parent uint64, name string, newParent uint64, newName string) error {
	if err := checkFileName(name); err != nil {
		return err
	}
	if err := checkFileName(newName); err != nil {
		return err
	}
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		var done struct{}
		ino, err := txn.Lookup(ctx, parent, name)
		if err != nil {
			return done, err
		}
		if _, err := txn.Link(ctx, ino, newParent, newName); err != nil {
			return done, err
		}
		if err := txn.Unlink(ctx, parent, name); err != nil {
			return done, err
		}

		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return done, err
		}
		if inode.Kind == Directory {
			materialized, err := txn.GetIndex(ctx, ino, DirParent)
			if err != nil {
				return done, err
			}
			if materialized != 0 {
				if err := txn.Unlink(ctx, ino, DirParent); err != nil {
					return done, err
				}
				if _, err := txn.Link(ctx, newParent, ino, DirParent); err != nil {
					return done, err
				}
			}
		}
		return done, nil
	})
	return err
}

// Symlink creates a symbolic link to target under (parent, name).
func (fs *TiFS) Symlink(ctx context.Context, parent uint64, name, target string, uid, gid uint32) (*Entry, error) {
	if err := checkFileName(name); err != nil {
		return nil, err
	}
	inode, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Inode, error) {
		inode, err := txn.MakeInode(ctx, parent, name, MakeMode(Symlink, 0o777), uid, gid, 0)
		if err != nil {
			return nil, err
		}
		if _, err := txn.WriteLink(inode, []byte(target)); err != nil {
			return nil, err
		}
		return inode, nil
	})
	if err != nil {
		return nil, err
	}
	return &Entry{Stat: inode}, nil
}

// ReadLink reads a symlink target.
func (fs *TiFS) ReadLink(ctx context.Context, ino uint64) (*Data, error) {
	data, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) ([]byte, error) {
		return txn.ReadLink(ctx, ino)
	})
	if err != nil {
		return nil, err
	}
	return &Data{Data: data}, nil
}

// Fallocate extends ino to cover [offset, offset+length).
func (fs *TiFS) Fallocate(ctx context.Context, ino uint64, offset, length int64) error {
	_, err := spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (struct{}, error) {
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, txn.Fallocate(ctx, inode, offset, length)
	})
	return err
}

// Lseek repositions the cursor of a handle.
func (fs *TiFS) Lseek(ctx context.Context, ino, fh uint64, offset int64, whence int32) (*Lseek, error) {
	return spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*Lseek, error) {
		handler, err := txn.ReadFh(ctx, ino, fh)
		if err != nil {
			return nil, err
		}
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			return nil, err
		}

		var target int64
		switch whence {
		case unix.SEEK_SET:
			target = offset
		case unix.SEEK_CUR:
			target = int64(handler.Cursor) + offset
		case unix.SEEK_END:
			target = int64(inode.Size) + offset
		default:
			return nil, errUnknownWhence(whence)
		}
		if target < 0 {
			return nil, errInvalidOffset(ino, target)
		}

		handler.Cursor = uint64(target)
		if err := txn.SaveFh(ino, fh, handler); err != nil {
			return nil, err
		}
		return &Lseek{Offset: target}, nil
	})
}

// StatFs reports filesystem usage.
func (fs *TiFS) StatFs(ctx context.Context) (*StatFs, error) {
	return spinNoDelay(ctx, fs, func(ctx context.Context, txn *Txn) (*StatFs, error) {
		return txn.StatFs(ctx)
	})
}

// Access is a permission probe; enforcement is left to the kernel.
func (fs *TiFS) Access(ctx context.Context, ino uint64, mask int32) error {
	return nil
}

// SetXattr accepts the call without persisting anything.
func (fs *TiFS) SetXattr(ctx context.Context, ino uint64, name string, value []byte) error {
	return nil
}

// GetXattr answers empty.
func (fs *TiFS) GetXattr(ctx context.Context, ino uint64, name string, size uint32) (*Xattr, error) {
	return &Xattr{}, nil
}

// ListXattr answers empty.
func (fs *TiFS) ListXattr(ctx context.Context, ino uint64, size uint32) (*Xattr, error) {
	return &Xattr{}, nil
}

// RemoveXattr accepts the call without persisting anything.
func (fs *TiFS) RemoveXattr(ctx context.Context, ino uint64, name string) error {
	return nil
}
