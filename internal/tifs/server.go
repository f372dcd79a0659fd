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
	"os"
	"sync"

	"github.com/jacobsa/fuse"
	"github.com/jacobsa/fuse/fuseops"
	"github.com/jacobsa/fuse/fuseutil"

	"github.com/hexilee/tifs/internal/logger"
	"github.com/hexilee/tifs/internal/monitor"
)

// ServerConfig carries what the fuse adapter needs besides the engine.
type ServerConfig struct {
	// Uid and Gid own every inode created through this mount.
	Uid uint32
	Gid uint32
}

// fuseServer adapts the engine to the fuse bridge. The bridge dispatches
// each incoming op on its own goroutine, so slow operations never block the
// connection; the adapter itself only keeps the mount-local table mapping
// kernel handle ids to the engine's per-inode handles.
//
// Advisory-lock operations (SetLk, GetLk) live on the engine; this bridge
// does not deliver lock requests, so they are reachable through the engine
// API only.
type fuseServer struct {
	fuseutil.NotImplementedFileSystem

	fs  *TiFS
	uid uint32
	gid uint32

	mu         sync.Mutex
	nextHandle fuseops.HandleID
	handles    map[fuseops.HandleID]handleTarget
}

type handleTarget struct {
	ino uint64
	fh  uint64
	dir bool
}

// NewServer wires the engine into a fuse.Server after initializing the
// filesystem (root creation, block-size validation).
func NewServer(ctx context.Context, fs *TiFS, cfg ServerConfig) (fuse.Server, error) {
	if err := fs.Init(ctx, cfg.Uid, cfg.Gid); err != nil {
		return nil, err
	}
	server := &fuseServer{
		fs:      fs,
		uid:     cfg.Uid,
		gid:     cfg.Gid,
		handles: make(map[fuseops.HandleID]handleTarget),
	}
	return fuseutil.NewFileSystemServer(server), nil
}

////////////////////////////////////////////////////////////////////////
// Helpers
////////////////////////////////////////////////////////////////////////

// errno converts engine failures into the kernel reply errno.
func errno(err error) error {
	if err == nil {
		return nil
	}
	logger.Debugf("replying errno for: %v", err)
	return ToErrno(err)
}

func (s *fuseServer) trackHandle(ino, fh uint64, dir bool) fuseops.HandleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextHandle
	s.nextHandle++
	s.handles[id] = handleTarget{ino: ino, fh: fh, dir: dir}
	return id
}

func (s *fuseServer) lookupHandle(id fuseops.HandleID) (handleTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.handles[id]
	return target, ok
}

func (s *fuseServer) dropHandle(id fuseops.HandleID) (handleTarget, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	target, ok := s.handles[id]
	delete(s.handles, id)
	return target, ok
}

func (s *fuseServer) attributes(inode *Inode) fuseops.InodeAttributes {
	return fuseops.InodeAttributes{
		Size:   inode.Size,
		Nlink:  inode.Nlink,
		Mode:   OSFileMode(inode.Kind, inode.Perm),
		Atime:  inode.AtimeTime(),
		Mtime:  inode.MtimeTime(),
		Ctime:  inode.CtimeTime(),
		Crtime: inode.CrtimeTime(),
		Uid:    inode.Uid,
		Gid:    inode.Gid,
	}
}

// childEntry fills a ChildInodeEntry. Expirations are left in the past: with
// multiple mounts on one cluster, kernel-side caching of entries would break
// cross-mount consistency.
func (s *fuseServer) childEntry(entry *Entry) fuseops.ChildInodeEntry {
	return fuseops.ChildInodeEntry{
		Child:      fuseops.InodeID(entry.Stat.Ino),
		Generation: fuseops.GenerationNumber(entry.Generation),
		Attributes: s.attributes(entry.Stat),
	}
}

func direntType(kind FileType) fuseutil.DirentType {
	switch kind {
	case Directory:
		return fuseutil.DT_Directory
	case Symlink:
		return fuseutil.DT_Link
	case NamedPipe:
		return fuseutil.DT_FIFO
	case BlockDevice:
		return fuseutil.DT_Block
	case CharDevice:
		return fuseutil.DT_Char
	case Socket:
		return fuseutil.DT_Socket
	default:
		return fuseutil.DT_File
	}
}

////////////////////////////////////////////////////////////////////////
// fuseutil.FileSystem methods
////////////////////////////////////////////////////////////////////////

func (s *fuseServer) StatFS(ctx context.Context, op *fuseops.StatFSOp) error {
	ctx, span := monitor.StartSpan(ctx, "StatFS")
	defer span.End()

	stat, err := s.fs.StatFs(ctx)
	if err != nil {
		return errno(err)
	}
	op.BlockSize = stat.Bsize
	op.Blocks = stat.Blocks
	op.BlocksFree = stat.Bfree
	op.BlocksAvailable = stat.Bavail
	op.IoSize = stat.Bsize
	op.Inodes = stat.Files + stat.Ffree
	op.InodesFree = stat.Ffree
	return nil
}

func (s *fuseServer) LookUpInode(ctx context.Context, op *fuseops.LookUpInodeOp) error {
	ctx, span := monitor.StartSpan(ctx, "LookUpInode")
	defer span.End()

	entry, err := s.fs.Lookup(ctx, uint64(op.Parent), op.Name)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(entry)
	return nil
}

func (s *fuseServer) GetInodeAttributes(ctx context.Context, op *fuseops.GetInodeAttributesOp) error {
	ctx, span := monitor.StartSpan(ctx, "GetInodeAttributes")
	defer span.End()

	attr, err := s.fs.GetAttr(ctx, uint64(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Attributes = s.attributes(attr.Stat)
	return nil
}

func (s *fuseServer) SetInodeAttributes(ctx context.Context, op *fuseops.SetInodeAttributesOp) error {
	ctx, span := monitor.StartSpan(ctx, "SetInodeAttributes")
	defer span.End()

	params := SetAttrParams{Size: op.Size}
	if op.Mode != nil {
		mode := fromOSFileMode(*op.Mode)
		params.Mode = &mode
	}
	if op.Atime != nil {
		params.Atime = &TimeOrNow{Time: *op.Atime}
	}
	if op.Mtime != nil {
		params.Mtime = &TimeOrNow{Time: *op.Mtime}
	}

	attr, err := s.fs.SetAttr(ctx, uint64(op.Inode), params)
	if err != nil {
		return errno(err)
	}
	op.Attributes = s.attributes(attr.Stat)
	return nil
}

func (s *fuseServer) ForgetInode(ctx context.Context, op *fuseops.ForgetInodeOp) error {
	return nil
}

func (s *fuseServer) BatchForget(ctx context.Context, op *fuseops.BatchForgetOp) error {
	return nil
}

func (s *fuseServer) MkDir(ctx context.Context, op *fuseops.MkDirOp) error {
	ctx, span := monitor.StartSpan(ctx, "MkDir")
	defer span.End()

	entry, err := s.fs.MkDir(ctx, uint64(op.Parent), op.Name, fromOSFileMode(op.Mode), s.uid, s.gid)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(entry)
	return nil
}

func (s *fuseServer) MkNode(ctx context.Context, op *fuseops.MkNodeOp) error {
	ctx, span := monitor.StartSpan(ctx, "MkNode")
	defer span.End()

	entry, err := s.fs.MkNod(ctx, uint64(op.Parent), op.Name, fromOSFileMode(op.Mode), s.uid, s.gid, 0)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(entry)
	return nil
}

func (s *fuseServer) CreateFile(ctx context.Context, op *fuseops.CreateFileOp) error {
	ctx, span := monitor.StartSpan(ctx, "CreateFile")
	defer span.End()

	create, err := s.fs.Create(ctx, uint64(op.Parent), op.Name, fromOSFileMode(op.Mode), s.uid, s.gid)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(&Entry{Stat: create.Stat, Generation: create.Generation})
	op.Handle = s.trackHandle(create.Stat.Ino, create.Fh, false)
	return nil
}

func (s *fuseServer) CreateLink(ctx context.Context, op *fuseops.CreateLinkOp) error {
	ctx, span := monitor.StartSpan(ctx, "CreateLink")
	defer span.End()

	entry, err := s.fs.Link(ctx, uint64(op.Target), uint64(op.Parent), op.Name)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(entry)
	return nil
}

func (s *fuseServer) CreateSymlink(ctx context.Context, op *fuseops.CreateSymlinkOp) error {
	ctx, span := monitor.StartSpan(ctx, "CreateSymlink")
	defer span.End()

	entry, err := s.fs.Symlink(ctx, uint64(op.Parent), op.Name, op.Target, s.uid, s.gid)
	if err != nil {
		return errno(err)
	}
	op.Entry = s.childEntry(entry)
	return nil
}

func (s *fuseServer) Rename(ctx context.Context, op *fuseops.RenameOp) error {
	ctx, span := monitor.StartSpan(ctx, "Rename")
	defer span.End()

	err := s.fs.Rename(ctx, uint64(op.OldParent), op.OldName, uint64(op.NewParent), op.NewName)
	return errno(err)
}

func (s *fuseServer) RmDir(ctx context.Context, op *fuseops.RmDirOp) error {
	ctx, span := monitor.StartSpan(ctx, "RmDir")
	defer span.End()

	return errno(s.fs.RmDir(ctx, uint64(op.Parent), op.Name))
}

func (s *fuseServer) Unlink(ctx context.Context, op *fuseops.UnlinkOp) error {
	ctx, span := monitor.StartSpan(ctx, "Unlink")
	defer span.End()

	return errno(s.fs.Unlink(ctx, uint64(op.Parent), op.Name))
}

func (s *fuseServer) OpenDir(ctx context.Context, op *fuseops.OpenDirOp) error {
	ctx, span := monitor.StartSpan(ctx, "OpenDir")
	defer span.End()

	// Directory handles are mount-local; readdir re-reads the listing each
	// time, so nothing needs to persist.
	op.Handle = s.trackHandle(uint64(op.Inode), 0, true)
	return nil
}

func (s *fuseServer) ReadDir(ctx context.Context, op *fuseops.ReadDirOp) error {
	ctx, span := monitor.StartSpan(ctx, "ReadDir")
	defer span.End()

	reply, err := s.fs.ReadDir(ctx, uint64(op.Inode), int(op.Offset))
	if err != nil {
		return errno(err)
	}
	for i, item := range reply.Items {
		n := fuseutil.WriteDirent(op.Dst[op.BytesRead:], fuseutil.Dirent{
			Offset: op.Offset + fuseops.DirOffset(i) + 1,
			Inode:  fuseops.InodeID(item.Ino),
			Name:   item.Name,
			Type:   direntType(item.Typ),
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (s *fuseServer) ReadDirPlus(ctx context.Context, op *fuseops.ReadDirPlusOp) error {
	ctx, span := monitor.StartSpan(ctx, "ReadDirPlus")
	defer span.End()

	reply, err := s.fs.ReadDirPlus(ctx, uint64(op.Inode), int(op.Offset))
	if err != nil {
		return errno(err)
	}
	for i, item := range reply.Items {
		n := fuseutil.WriteDirentPlus(op.Dst[op.BytesRead:], fuseutil.DirentPlus{
			Dirent: fuseutil.Dirent{
				Offset: op.Offset + fuseops.DirOffset(i) + 1,
				Inode:  fuseops.InodeID(item.Item.Ino),
				Name:   item.Item.Name,
				Type:   direntType(item.Item.Typ),
			},
			Entry: s.childEntry(&item.Entry),
		})
		if n == 0 {
			break
		}
		op.BytesRead += n
	}
	return nil
}

func (s *fuseServer) ReleaseDirHandle(ctx context.Context, op *fuseops.ReleaseDirHandleOp) error {
	s.dropHandle(op.Handle)
	return nil
}

func (s *fuseServer) OpenFile(ctx context.Context, op *fuseops.OpenFileOp) error {
	ctx, span := monitor.StartSpan(ctx, "OpenFile")
	defer span.End()

	open, err := s.fs.Open(ctx, uint64(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Handle = s.trackHandle(uint64(op.Inode), open.Fh, false)
	if s.fs.DirectIO() || op.OpenFlags.IsDirect() {
		op.UseDirectIO = true
	}
	return nil
}

func (s *fuseServer) ReadFile(ctx context.Context, op *fuseops.ReadFileOp) error {
	ctx, span := monitor.StartSpan(ctx, "ReadFile")
	defer span.End()

	target, ok := s.lookupHandle(op.Handle)
	if !ok {
		return errno(errFhNotFound(uint64(op.Inode), uint64(op.Handle)))
	}
	data, err := s.fs.Read(ctx, target.ino, target.fh, op.Offset, uint32(len(op.Dst)))
	if err != nil {
		return errno(err)
	}
	op.BytesRead = copy(op.Dst, data.Data)
	return nil
}

func (s *fuseServer) WriteFile(ctx context.Context, op *fuseops.WriteFileOp) error {
	ctx, span := monitor.StartSpan(ctx, "WriteFile")
	defer span.End()

	target, ok := s.lookupHandle(op.Handle)
	if !ok {
		return errno(errFhNotFound(uint64(op.Inode), uint64(op.Handle)))
	}
	_, err := s.fs.Write(ctx, target.ino, target.fh, op.Offset, op.Data)
	return errno(err)
}

func (s *fuseServer) SyncFile(ctx context.Context, op *fuseops.SyncFileOp) error {
	// Every write commits through the store before replying; there is
	// nothing left to flush.
	return nil
}

func (s *fuseServer) FlushFile(ctx context.Context, op *fuseops.FlushFileOp) error {
	return nil
}

func (s *fuseServer) ReleaseFileHandle(ctx context.Context, op *fuseops.ReleaseFileHandleOp) error {
	ctx, span := monitor.StartSpan(ctx, "ReleaseFileHandle")
	defer span.End()

	target, ok := s.dropHandle(op.Handle)
	if !ok || target.dir {
		return errno(errFhNotFound(0, uint64(op.Handle)))
	}
	return errno(s.fs.Release(ctx, target.ino, target.fh))
}

func (s *fuseServer) ReadSymlink(ctx context.Context, op *fuseops.ReadSymlinkOp) error {
	ctx, span := monitor.StartSpan(ctx, "ReadSymlink")
	defer span.End()

	data, err := s.fs.ReadLink(ctx, uint64(op.Inode))
	if err != nil {
		return errno(err)
	}
	op.Target = string(data.Data)
	return nil
}

func (s *fuseServer) Fallocate(ctx context.Context, op *fuseops.FallocateOp) error {
	ctx, span := monitor.StartSpan(ctx, "Fallocate")
	defer span.End()

	return errno(s.fs.Fallocate(ctx, uint64(op.Inode), int64(op.Offset), int64(op.Length)))
}

func (s *fuseServer) GetXattr(ctx context.Context, op *fuseops.GetXattrOp) error {
	xattr, err := s.fs.GetXattr(ctx, uint64(op.Inode), op.Name, uint32(len(op.Dst)))
	if err != nil {
		return errno(err)
	}
	op.BytesRead = copy(op.Dst, xattr.Data)
	return nil
}

func (s *fuseServer) ListXattr(ctx context.Context, op *fuseops.ListXattrOp) error {
	xattr, err := s.fs.ListXattr(ctx, uint64(op.Inode), uint32(len(op.Dst)))
	if err != nil {
		return errno(err)
	}
	op.BytesRead = copy(op.Dst, xattr.Data)
	return nil
}

func (s *fuseServer) SetXattr(ctx context.Context, op *fuseops.SetXattrOp) error {
	return errno(s.fs.SetXattr(ctx, uint64(op.Inode), op.Name, op.Value))
}

func (s *fuseServer) RemoveXattr(ctx context.Context, op *fuseops.RemoveXattrOp) error {
	return errno(s.fs.RemoveXattr(ctx, uint64(op.Inode), op.Name))
}

func (s *fuseServer) SyncFS(ctx context.Context, op *fuseops.SyncFSOp) error {
	return nil
}

func (s *fuseServer) Destroy() {}

// fromOSFileMode converts the kernel's os.FileMode into the raw mode word
// the engine stores.
func fromOSFileMode(mode os.FileMode) uint32 {
	return MakeMode(KindFromOSMode(mode), uint16(mode.Perm()))
}
