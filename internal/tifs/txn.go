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
	"math"

	"github.com/jacobsa/timeutil"

	"github.com/hexilee/tifs/internal/store"
)

// inlineThresholdBase derives the inline-data threshold from the block size:
// payloads up to blockSize/16 live inside the inode record instead of a
// block.
const inlineThresholdBase = 1 << 4

// Txn wraps one store transaction and exposes the typed primitives all
// filesystem operations are built from. Every semantic invariant of the
// on-store layout lives here. A Txn must not outlive its transaction and is
// never shared between tasks.
type Txn struct {
	txn        store.Txn
	clock      timeutil.Clock
	blockSize  uint64
	maxBlocks  uint64 // 0 means unbounded
	maxNameLen uint32
}

// NewTxn wraps txn with the engine configuration.
func NewTxn(txn store.Txn, clock timeutil.Clock, blockSize, maxBlocks uint64, maxNameLen uint32) *Txn {
	return &Txn{
		txn:        txn,
		clock:      clock,
		blockSize:  blockSize,
		maxBlocks:  maxBlocks,
		maxNameLen: maxNameLen,
	}
}

// BlockSize returns the configured block size.
func (t *Txn) BlockSize() uint64 { return t.blockSize }

// Commit commits the wrapped transaction.
func (t *Txn) Commit(ctx context.Context) error { return t.txn.Commit(ctx) }

// Rollback discards the wrapped transaction.
func (t *Txn) Rollback() error { return t.txn.Rollback() }

func (t *Txn) inlineThreshold() uint64 {
	return t.blockSize / inlineThresholdBase
}

func (t *Txn) now() int64 {
	return t.clock.Now().UnixNano()
}

func (t *Txn) emptyBlock() []byte {
	return make([]byte, t.blockSize)
}

// checkSpaceLeft pre-rejects mutations when the cached statfs reports a full
// filesystem. The cache is a hint, not a reservation.
func (t *Txn) checkSpaceLeft(meta *Meta) error {
	if meta == nil {
		return nil
	}
	if stat := meta.LastStat; stat != nil && stat.Bavail == 0 {
		return errNoSpaceLeft(uint64(stat.Bsize) * stat.Blocks)
	}
	return nil
}

////////////////////////////////////////////////////////////////////////
// Meta & inodes
////////////////////////////////////////////////////////////////////////

// ReadMeta returns the Meta singleton, or nil before first init. Meta is
// always read for update: most readers either bump the allocator or rewrite
// the cached stat, and in pessimistic mode the lock serializes those
// writers. WriteData reads it only to consult the cached stat.
func (t *Txn) ReadMeta(ctx context.Context) (*Meta, error) {
	data, err := t.txn.GetForUpdate(ctx, MetaKey())
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return DeserializeMeta(data)
}

// GetRaw reads an arbitrary key; the debugger uses it to inspect raw state.
func (t *Txn) GetRaw(ctx context.Context, key []byte) ([]byte, error) {
	return t.txn.Get(ctx, key)
}

// DeleteRaw removes an arbitrary key.
func (t *Txn) DeleteRaw(key []byte) error {
	return t.txn.Delete(key)
}

// DeleteMeta erases the Meta singleton.
func (t *Txn) DeleteMeta() error {
	return t.txn.Delete(MetaKey())
}

// SaveMeta writes the Meta singleton.
func (t *Txn) SaveMeta(meta *Meta) error {
	data, err := meta.Serialize()
	if err != nil {
		return err
	}
	return t.txn.Put(MetaKey(), data)
}

// ReadInode returns the inode record of ino. Inodes are read for update:
// nearly every caller writes the record back (times, size, counters), and
// in pessimistic mode the lock covers the read-modify-write.
func (t *Txn) ReadInode(ctx context.Context, ino uint64) (*Inode, error) {
	data, err := t.txn.GetForUpdate(ctx, InodeKey(ino))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errInodeNotFound(ino)
	}
	return DeserializeInode(data)
}

// SaveInode persists the inode, or deletes the record when the inode is dead
// (no links and no open handles).
func (t *Txn) SaveInode(inode *Inode) error {
	key := InodeKey(inode.Ino)
	if inode.Nlink == 0 && inode.OpenedFh == 0 {
		return t.txn.Delete(key)
	}
	data, err := inode.Serialize()
	if err != nil {
		return err
	}
	return t.txn.Put(key, data)
}

// RemoveInode deletes the inode record of ino.
func (t *Txn) RemoveInode(ino uint64) error {
	return t.txn.Delete(InodeKey(ino))
}

// removeDeadInode erases a dead inode together with its data blocks.
func (t *Txn) removeDeadInode(ctx context.Context, inode *Inode) error {
	if _, err := t.clearBlocks(inode); err != nil {
		return err
	}
	return t.RemoveInode(inode.Ino)
}

////////////////////////////////////////////////////////////////////////
// Name index
////////////////////////////////////////////////////////////////////////

// GetIndex resolves (parent, name) to an inode id, or 0 when the name does
// not exist.
func (t *Txn) GetIndex(ctx context.Context, parent uint64, name string) (uint64, error) {
	data, err := t.txn.Get(ctx, IndexKey(parent, name))
	if err != nil {
		return 0, err
	}
	if data == nil {
		return 0, nil
	}
	index, err := DeserializeIndex(data)
	if err != nil {
		return 0, err
	}
	return index.Ino, nil
}

// SetIndex records (parent, name) -> ino.
func (t *Txn) SetIndex(parent uint64, name string, ino uint64) error {
	value, err := Index{Ino: ino}.Serialize()
	if err != nil {
		return err
	}
	return t.txn.Put(IndexKey(parent, name), value)
}

// RemoveIndex erases the (parent, name) entry.
func (t *Txn) RemoveIndex(parent uint64, name string) error {
	return t.txn.Delete(IndexKey(parent, name))
}

// Lookup resolves (parent, name) or fails with FileNotFound.
func (t *Txn) Lookup(ctx context.Context, parent uint64, name string) (uint64, error) {
	ino, err := t.GetIndex(ctx, parent, name)
	if err != nil {
		return 0, err
	}
	if ino == 0 {
		return 0, errFileNotFound(name)
	}
	return ino, nil
}

////////////////////////////////////////////////////////////////////////
// Inode creation & directory protocol
////////////////////////////////////////////////////////////////////////

// MakeInode allocates a fresh inode and links it under (parent, name).
// Creation races are resolved by the index presence check: inside one
// transaction at most one creator can both observe the name absent and
// insert it, so concurrent creates of the same name end with exactly one
// winner and FileExist for the rest.
func (t *Txn) MakeInode(ctx context.Context, parent uint64, name string, mode uint32, uid, gid, rdev uint32) (*Inode, error) {
	meta, err := t.ReadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		meta = NewMeta(t.blockSize)
	}
	if err := t.checkSpaceLeft(meta); err != nil {
		return nil, err
	}
	ino := meta.InodeNext
	meta.InodeNext++
	if err := t.SaveMeta(meta); err != nil {
		return nil, err
	}

	kind, err := FileKind(mode)
	if err != nil {
		return nil, err
	}

	if parent >= RootInode {
		existing, err := t.GetIndex(ctx, parent, name)
		if err != nil {
			return nil, err
		}
		if existing != 0 {
			return nil, errFileExist(name)
		}
		if err := t.SetIndex(parent, name, ino); err != nil {
			return nil, err
		}

		dir, err := t.ReadDir(ctx, parent)
		if err != nil {
			return nil, err
		}
		dir = append(dir, DirItem{Ino: ino, Name: name, Typ: kind})
		if _, err := t.SaveDir(ctx, parent, dir); err != nil {
			return nil, err
		}
	}

	now := t.now()
	inode := &Inode{
		Ino:       ino,
		Atime:     now,
		Mtime:     now,
		Ctime:     now,
		Crtime:    now,
		Kind:      kind,
		Perm:      FilePerm(mode),
		Nlink:     1,
		Uid:       uid,
		Gid:       gid,
		Rdev:      rdev,
		BlkSize:   uint32(t.blockSize),
		LockState: NewLockState(),
	}
	if err := t.SaveInode(inode); err != nil {
		return nil, err
	}
	return inode, nil
}

// Mkdir creates a directory inode with an empty listing.
func (t *Txn) Mkdir(ctx context.Context, parent uint64, name string, mode uint32, uid, gid uint32) (*Inode, error) {
	dirMode := MakeMode(Directory, FilePerm(mode))
	inode, err := t.MakeInode(ctx, parent, name, dirMode, uid, gid, 0)
	if err != nil {
		return nil, err
	}
	return t.SaveDir(ctx, inode.Ino, Dir{})
}

// ReadDir returns the listing of ino, stored as its block 0.
func (t *Txn) ReadDir(ctx context.Context, ino uint64) (Dir, error) {
	data, err := t.txn.Get(ctx, BlockKey(ino, 0))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errBlockNotFound(ino, 0)
	}
	return DecodeDir(data)
}

// SaveDir writes the listing of ino and refreshes the directory inode's size
// and times.
func (t *Txn) SaveDir(ctx context.Context, ino uint64, dir Dir) (*Inode, error) {
	data, err := EncodeDir(dir)
	if err != nil {
		return nil, err
	}
	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return nil, err
	}
	now := t.now()
	inode.SetSize(uint64(len(data)), t.blockSize)
	inode.Atime = now
	inode.Mtime = now
	inode.Ctime = now
	if err := t.SaveInode(inode); err != nil {
		return nil, err
	}
	if err := t.txn.Put(BlockKey(ino, 0), data); err != nil {
		return nil, err
	}
	return inode, nil
}

// Link makes ino visible as (newParent, newName), replacing any existing
// entry of that name first, and bumps the link count.
func (t *Txn) Link(ctx context.Context, ino, newParent uint64, newName string) (*Inode, error) {
	if old, err := t.GetIndex(ctx, newParent, newName); err != nil {
		return nil, err
	} else if old != 0 {
		inode, err := t.ReadInode(ctx, old)
		if err != nil {
			return nil, err
		}
		if inode.Kind == Directory {
			err = t.Rmdir(ctx, newParent, newName)
		} else {
			err = t.Unlink(ctx, newParent, newName)
		}
		if err != nil {
			return nil, err
		}
	}
	if err := t.SetIndex(newParent, newName, ino); err != nil {
		return nil, err
	}

	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return nil, err
	}
	dir, err := t.ReadDir(ctx, newParent)
	if err != nil {
		return nil, err
	}
	dir = append(dir, DirItem{Ino: ino, Name: newName, Typ: inode.Kind})
	if _, err := t.SaveDir(ctx, newParent, dir); err != nil {
		return nil, err
	}

	inode.Nlink++
	inode.Ctime = t.now()
	if err := t.SaveInode(inode); err != nil {
		return nil, err
	}
	return inode, nil
}

// Unlink removes (parent, name) and drops the target's link count. The
// inode itself survives while handles stay open; the last close erases it.
func (t *Txn) Unlink(ctx context.Context, parent uint64, name string) error {
	ino, err := t.GetIndex(ctx, parent, name)
	if err != nil {
		return err
	}
	if ino == 0 {
		return errFileNotFound(name)
	}

	if err := t.RemoveIndex(parent, name); err != nil {
		return err
	}
	if err := t.removeDirItem(ctx, parent, name); err != nil {
		return err
	}

	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return err
	}
	inode.Nlink--
	inode.Ctime = t.now()
	if inode.Nlink == 0 && inode.OpenedFh == 0 {
		return t.removeDeadInode(ctx, inode)
	}
	return t.SaveInode(inode)
}

// Rmdir removes an empty directory.
func (t *Txn) Rmdir(ctx context.Context, parent uint64, name string) error {
	ino, err := t.GetIndex(ctx, parent, name)
	if err != nil {
		return err
	}
	if ino == 0 {
		return errFileNotFound(name)
	}

	target, err := t.ReadDir(ctx, ino)
	if err != nil {
		return err
	}
	if len(target) != 0 {
		return errDirNotEmpty(name)
	}

	if err := t.RemoveIndex(parent, name); err != nil {
		return err
	}
	if err := t.txn.Delete(BlockKey(ino, 0)); err != nil {
		return err
	}
	if err := t.RemoveInode(ino); err != nil {
		return err
	}
	return t.removeDirItem(ctx, parent, name)
}

// removeDirItem rewrites the parent listing without the given name.
func (t *Txn) removeDirItem(ctx context.Context, parent uint64, name string) error {
	dir, err := t.ReadDir(ctx, parent)
	if err != nil {
		return err
	}
	filtered := make(Dir, 0, len(dir))
	for _, item := range dir {
		if item.Name != name {
			filtered = append(filtered, item)
		}
	}
	_, err = t.SaveDir(ctx, parent, filtered)
	return err
}

////////////////////////////////////////////////////////////////////////
// File handles
////////////////////////////////////////////////////////////////////////

// Open allocates a handle on ino with the cursor at zero.
func (t *Txn) Open(ctx context.Context, ino uint64) (uint64, error) {
	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return 0, err
	}
	fh := inode.NextFh
	if err := t.SaveFh(ino, fh, &FileHandler{}); err != nil {
		return 0, err
	}
	inode.NextFh++
	inode.OpenedFh++
	if err := t.SaveInode(inode); err != nil {
		return 0, err
	}
	return fh, nil
}

// Close releases a handle. When the last handle of an unlinked inode goes
// away the inode and its data are erased.
func (t *Txn) Close(ctx context.Context, ino, fh uint64) error {
	if _, err := t.ReadFh(ctx, ino, fh); err != nil {
		return err
	}
	if err := t.txn.Delete(HandlerKey(ino, fh)); err != nil {
		return err
	}

	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return err
	}
	inode.OpenedFh--
	if inode.Nlink == 0 && inode.OpenedFh == 0 {
		return t.removeDeadInode(ctx, inode)
	}
	return t.SaveInode(inode)
}

// ReadFh returns the handle record.
func (t *Txn) ReadFh(ctx context.Context, ino, fh uint64) (*FileHandler, error) {
	data, err := t.txn.Get(ctx, HandlerKey(ino, fh))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errFhNotFound(ino, fh)
	}
	return DeserializeFileHandler(data)
}

// SaveFh persists the handle record.
func (t *Txn) SaveFh(ino, fh uint64, handler *FileHandler) error {
	data, err := handler.Serialize()
	if err != nil {
		return err
	}
	return t.txn.Put(HandlerKey(ino, fh), data)
}

////////////////////////////////////////////////////////////////////////
// File IO
////////////////////////////////////////////////////////////////////////

// Read reads through a handle; the absolute position is the handle cursor
// plus the caller offset.
func (t *Txn) Read(ctx context.Context, ino, fh uint64, offset int64, size uint32) ([]byte, error) {
	handler, err := t.ReadFh(ctx, ino, fh)
	if err != nil {
		return nil, err
	}
	start := int64(handler.Cursor) + offset
	if start < 0 {
		return nil, errInvalidOffset(ino, start)
	}
	return t.ReadData(ctx, ino, uint64(start), uint64(size), true)
}

// Write writes through a handle; the absolute position is the handle cursor
// plus the caller offset.
func (t *Txn) Write(ctx context.Context, ino, fh uint64, offset int64, data []byte) (int, error) {
	handler, err := t.ReadFh(ctx, ino, fh)
	if err != nil {
		return 0, err
	}
	start := int64(handler.Cursor) + offset
	if start < 0 {
		return 0, errInvalidOffset(ino, start)
	}
	return t.WriteData(ctx, ino, uint64(start), data)
}

// ReadData reads up to size bytes at start, clamped to the file size. Holes
// in the block range read as zeros. When sized is false the read extends to
// the end of the file.
func (t *Txn) ReadData(ctx context.Context, ino, start, size uint64, sized bool) ([]byte, error) {
	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return nil, err
	}
	if start >= inode.Size {
		return []byte{}, nil
	}

	maxSize := inode.Size - start
	if !sized || size > maxSize {
		size = maxSize
	}

	if inode.InlineData != nil {
		return t.readInlineData(inode, start, size)
	}

	target := start + size
	startBlock := start / t.blockSize
	endBlock := (target + t.blockSize - 1) / t.blockSize

	lo, hi := BlockRange(ino, startBlock, endBlock)
	pairs, err := t.txn.Scan(ctx, lo, hi, int(endBlock-startBlock))
	if err != nil {
		return nil, err
	}

	present := make(map[uint64][]byte, len(pairs))
	for _, pair := range pairs {
		key, err := ParseKey(pair.Key)
		if err != nil {
			return nil, err
		}
		present[key.Block] = pair.Value
	}

	data := make([]byte, 0, (endBlock-startBlock)*t.blockSize)
	for block := startBlock; block < endBlock; block++ {
		value, ok := present[block]
		if !ok {
			value = t.emptyBlock()
		} else if uint64(len(value)) < t.blockSize {
			value = append(value, make([]byte, t.blockSize-uint64(len(value)))...)
		}
		if block == startBlock {
			value = value[start%t.blockSize:]
		}
		data = append(data, value...)
	}
	if uint64(len(data)) > size {
		data = data[:size]
	}

	inode.Atime = t.now()
	if err := t.SaveInode(inode); err != nil {
		return nil, err
	}
	return data, nil
}

func (t *Txn) readInlineData(inode *Inode, start, size uint64) ([]byte, error) {
	inlined := inode.InlineData
	data := make([]byte, size)
	if uint64(len(inlined)) > start {
		copy(data, inlined[start:])
	}

	inode.Atime = t.now()
	if err := t.SaveInode(inode); err != nil {
		return nil, err
	}
	return data, nil
}

// WriteData writes data at the absolute position start, growing the file as
// needed. Small files live inline in the inode; crossing the inline
// threshold promotes the payload to block form.
func (t *Txn) WriteData(ctx context.Context, ino, start uint64, data []byte) (int, error) {
	meta, err := t.ReadMeta(ctx)
	if err != nil {
		return 0, err
	}
	if err := t.checkSpaceLeft(meta); err != nil {
		return 0, err
	}

	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return 0, err
	}
	size := uint64(len(data))
	target := start + size

	if (inode.InlineData != nil || inode.Size == 0) && target <= t.inlineThreshold() {
		return t.writeInlineData(inode, start, data)
	}
	if inode.InlineData != nil {
		if err := t.transferInlineDataToBlock(inode); err != nil {
			return 0, err
		}
	}

	blockIndex := start / t.blockSize
	startOffset := start % t.blockSize

	firstLen := t.blockSize - startOffset
	if firstLen > size {
		firstLen = size
	}
	first, rest := data[:firstLen], data[firstLen:]

	startKey := BlockKey(ino, blockIndex)
	startValue, err := t.readBlockOrZero(ctx, startKey)
	if err != nil {
		return 0, err
	}
	copy(startValue[startOffset:], first)
	if err := t.txn.Put(startKey, startValue); err != nil {
		return 0, err
	}

	for len(rest) != 0 {
		blockIndex++
		key := BlockKey(ino, blockIndex)
		chunkLen := t.blockSize
		if chunkLen > uint64(len(rest)) {
			chunkLen = uint64(len(rest))
		}
		chunk := rest[:chunkLen]
		rest = rest[chunkLen:]

		var value []byte
		if chunkLen < t.blockSize {
			value, err = t.readBlockOrZero(ctx, key)
			if err != nil {
				return 0, err
			}
			copy(value, chunk)
		} else {
			value = append([]byte(nil), chunk...)
		}
		if err := t.txn.Put(key, value); err != nil {
			return 0, err
		}
	}

	now := t.now()
	inode.Mtime = now
	inode.Ctime = now
	if target > inode.Size {
		inode.SetSize(target, t.blockSize)
	}
	if err := t.SaveInode(inode); err != nil {
		return 0, err
	}
	return int(size), nil
}

func (t *Txn) readBlockOrZero(ctx context.Context, key []byte) ([]byte, error) {
	value, err := t.txn.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value == nil {
		return t.emptyBlock(), nil
	}
	if uint64(len(value)) < t.blockSize {
		value = append(value, make([]byte, t.blockSize-uint64(len(value)))...)
	}
	return value, nil
}

// transferInlineDataToBlock materializes the inline payload as block 0,
// zero-padded to a full block.
func (t *Txn) transferInlineDataToBlock(inode *Inode) error {
	value := make([]byte, t.blockSize)
	copy(value, inode.InlineData)
	if err := t.txn.Put(BlockKey(inode.Ino, 0), value); err != nil {
		return err
	}
	inode.InlineData = nil
	return nil
}

func (t *Txn) writeInlineData(inode *Inode, start uint64, data []byte) (int, error) {
	size := uint64(len(data))
	inlined := inode.InlineData
	if start+size > uint64(len(inlined)) {
		grown := make([]byte, start+size)
		copy(grown, inlined)
		inlined = grown
	}
	copy(inlined[start:], data)

	now := t.now()
	inode.Mtime = now
	inode.Ctime = now
	inode.SetSize(uint64(len(inlined)), t.blockSize)
	inode.InlineData = inlined
	if err := t.SaveInode(inode); err != nil {
		return 0, err
	}
	return int(size), nil
}

// ClearData erases every data block of ino and truncates it to zero.
func (t *Txn) ClearData(ctx context.Context, ino uint64) (uint64, error) {
	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return 0, err
	}
	clearSize, err := t.clearBlocks(inode)
	if err != nil {
		return 0, err
	}
	inode.Size = 0
	inode.Blocks = 0
	inode.InlineData = nil
	now := t.now()
	inode.Mtime = now
	inode.Ctime = now
	if err := t.SaveInode(inode); err != nil {
		return 0, err
	}
	return clearSize, nil
}

// TruncateBlocks erases block data beyond newSize so a later extension
// reads back zeros instead of stale bytes.
func (t *Txn) TruncateBlocks(ctx context.Context, inode *Inode, newSize uint64) error {
	oldEnd := (inode.Size + t.blockSize - 1) / t.blockSize
	newEnd := (newSize + t.blockSize - 1) / t.blockSize
	for block := newEnd; block < oldEnd; block++ {
		if err := t.txn.Delete(BlockKey(inode.Ino, block)); err != nil {
			return err
		}
	}

	tail := newSize % t.blockSize
	if tail == 0 || newEnd == 0 {
		return nil
	}
	key := BlockKey(inode.Ino, newEnd-1)
	value, err := t.txn.Get(ctx, key)
	if err != nil || value == nil {
		return err
	}
	if uint64(len(value)) < t.blockSize {
		value = append(value, make([]byte, t.blockSize-uint64(len(value)))...)
	}
	for i := tail; i < t.blockSize; i++ {
		value[i] = 0
	}
	return t.txn.Put(key, value)
}

func (t *Txn) clearBlocks(inode *Inode) (uint64, error) {
	endBlock := (inode.Size + t.blockSize - 1) / t.blockSize
	for block := uint64(0); block < endBlock; block++ {
		if err := t.txn.Delete(BlockKey(inode.Ino, block)); err != nil {
			return 0, err
		}
	}
	return inode.Size, nil
}

// Fallocate extends the file to offset+length. Extensions beyond the inline
// threshold are sparse: only the size changes, blocks materialize on write.
func (t *Txn) Fallocate(ctx context.Context, inode *Inode, offset, length int64) error {
	target := uint64(offset + length)
	if target <= inode.Size {
		return nil
	}

	if inode.InlineData != nil {
		if target <= t.inlineThreshold() {
			zeros := make([]byte, target-inode.Size)
			_, err := t.writeInlineData(inode, inode.Size, zeros)
			return err
		}
		if err := t.transferInlineDataToBlock(inode); err != nil {
			return err
		}
	}

	inode.SetSize(target, t.blockSize)
	now := t.now()
	inode.Mtime = now
	inode.Ctime = now
	return t.SaveInode(inode)
}

////////////////////////////////////////////////////////////////////////
// Symlinks
////////////////////////////////////////////////////////////////////////

// WriteLink stores the symlink target inline, regardless of the threshold.
func (t *Txn) WriteLink(inode *Inode, target []byte) (int, error) {
	inode.InlineData = nil
	inode.SetSize(0, t.blockSize)
	return t.writeInlineData(inode, 0, target)
}

// ReadLink returns the symlink target of ino.
func (t *Txn) ReadLink(ctx context.Context, ino uint64) ([]byte, error) {
	inode, err := t.ReadInode(ctx, ino)
	if err != nil {
		return nil, err
	}
	return t.readInlineData(inode, 0, inode.Size)
}

////////////////////////////////////////////////////////////////////////
// Statfs
////////////////////////////////////////////////////////////////////////

// StatFs computes filesystem usage by walking the inode range and caches the
// result into Meta for the write path's space check.
func (t *Txn) StatFs(ctx context.Context) (*StatFs, error) {
	meta, err := t.ReadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if meta == nil {
		return nil, errUnknown(errInodeNotFound(RootInode))
	}

	nextInode := meta.InodeNext
	lo, hi := InodeRange(RootInode, nextInode)

	var usedBlocks, files uint64
	for start := lo; ; {
		pairs, err := t.txn.Scan(ctx, start, hi, ScanLimit)
		if err != nil {
			return nil, err
		}
		for _, pair := range pairs {
			inode, err := DeserializeInode(pair.Value)
			if err != nil {
				return nil, err
			}
			usedBlocks += inode.Blocks
			files++
		}
		if len(pairs) < ScanLimit {
			break
		}
		start = append(pairs[len(pairs)-1].Key, 0)
	}

	ffree := math.MaxUint64 - nextInode
	bfree := uint64(math.MaxUint64)
	blocks := usedBlocks
	if t.maxBlocks != 0 {
		if t.maxBlocks > usedBlocks {
			bfree = t.maxBlocks - usedBlocks
		} else {
			bfree = 0
		}
		blocks = t.maxBlocks
	}

	stat := &StatFs{
		Blocks:  blocks,
		Bfree:   bfree,
		Bavail:  bfree,
		Files:   files,
		Ffree:   ffree,
		Bsize:   uint32(t.blockSize),
		Namelen: t.maxNameLen,
	}
	meta.LastStat = stat
	if err := t.SaveMeta(meta); err != nil {
		return nil, err
	}
	return stat, nil
}
