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

package cmd

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jacobsa/timeutil"
	"github.com/spf13/cobra"
	"golang.org/x/net/context"

	"github.com/hexilee/tifs/internal/store"
	"github.com/hexilee/tifs/internal/tifs"
)

// newDebugCmd builds the admin REPL. Every command runs in one pessimistic
// transaction, serializing admin interactions against live mounts. The
// destructive reset command is only reachable from here, never from the
// mount path.
func newDebugCmd() *cobra.Command {
	var pdEndpoints []string

	cmd := &cobra.Command{
		Use:   "debug",
		Short: "Interactive debugger over the raw filesystem state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			kv, err := store.NewTiKVStore(pdEndpoints, store.Security{})
			if err != nil {
				return err
			}
			defer kv.Close()

			console := &console{
				pdEndpoints: pdEndpoints,
				engine:      tifs.NewTiFS(kv, timeutil.RealClock(), tifs.Config{}),
				in:          bufio.NewReader(os.Stdin),
				out:         os.Stdout,
			}
			for {
				exit, err := console.interact(cmd.Context())
				if err != nil {
					fmt.Fprintln(os.Stderr, err)
					continue
				}
				if exit {
					return nil
				}
			}
		},
	}

	cmd.Flags().StringSliceVar(&pdEndpoints, "pd-endpoints",
		[]string{"127.0.0.1:2379"}, "PD endpoints of the tikv cluster.")
	return cmd
}

type console struct {
	pdEndpoints []string
	engine      *tifs.TiFS
	in          *bufio.Reader
	out         io.Writer
}

// interact reads one command and runs it in a single pessimistic
// transaction.
func (c *console) interact(ctx context.Context) (exit bool, err error) {
	fmt.Fprintf(c.out, "%v> ", c.pdEndpoints)

	line, err := c.in.ReadString('\n')
	if err != nil {
		return true, nil
	}
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	txn, err := c.engine.Txn(ctx, store.Pessimistic)
	if err != nil {
		return false, err
	}
	exit, err = c.dispatch(ctx, txn, fields[0], fields[1:])
	if err != nil {
		if rbErr := txn.Rollback(); rbErr != nil {
			fmt.Fprintln(c.out, "rollback failed:", rbErr)
		}
		return false, err
	}
	return exit, txn.Commit(ctx)
}

func (c *console) dispatch(ctx context.Context, txn *tifs.Txn, command string, args []string) (bool, error) {
	switch command {
	case "exit":
		return true, nil
	case "reset":
		return false, c.reset(ctx, txn)
	case "get":
		return false, c.getBlock(ctx, txn, args, false)
	case "get_str":
		return false, c.getBlock(ctx, txn, args, true)
	case "get_attr":
		return false, c.getAttr(ctx, txn, args)
	case "get_raw":
		return false, c.getRaw(ctx, txn, args)
	case "get_inline":
		return false, c.getInline(ctx, txn, args)
	case "rm":
		return false, c.removeBlock(txn, args)
	default:
		return false, fmt.Errorf("unknown command `%s`", command)
	}
}

// reset erases every inode record with its data blocks, then Meta. Handle
// records and index entries are left in place.
func (c *console) reset(ctx context.Context, txn *tifs.Txn) error {
	meta, err := txn.ReadMeta(ctx)
	if err != nil {
		return err
	}
	if meta == nil {
		return nil
	}
	for ino := tifs.RootInode; ino < meta.InodeNext; ino++ {
		inode, err := txn.ReadInode(ctx, ino)
		if err != nil {
			if tifs.KindOf(err) == tifs.KindInodeNotFound {
				continue
			}
			return err
		}
		if _, err := txn.ClearData(ctx, inode.Ino); err != nil {
			return err
		}
		if err := txn.RemoveInode(inode.Ino); err != nil {
			return err
		}
	}
	return txn.DeleteMeta()
}

func parseArgs(args []string, want int) ([]uint64, error) {
	if len(args) < want {
		return nil, fmt.Errorf("invalid arguments `%v`", args)
	}
	parsed := make([]uint64, 0, len(args))
	for _, arg := range args {
		n, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid arguments `%v`: %w", args, err)
		}
		parsed = append(parsed, n)
	}
	return parsed, nil
}

func (c *console) getBlock(ctx context.Context, txn *tifs.Txn, args []string, asString bool) error {
	parsed, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	value, err := txn.GetRaw(ctx, tifs.BlockKey(parsed[0], parsed[1]))
	if err != nil {
		return err
	}
	if value == nil {
		fmt.Fprintln(c.out, "Not Found")
		return nil
	}
	offset := uint64(0)
	if len(parsed) > 2 {
		offset = parsed[2]
	}
	if offset > uint64(len(value)) {
		offset = uint64(len(value))
	}
	if asString {
		fmt.Fprintf(c.out, "%q\n", value[offset:])
	} else {
		fmt.Fprintf(c.out, "%v\n", value[offset:])
	}
	return nil
}

func (c *console) getAttr(ctx context.Context, txn *tifs.Txn, args []string) error {
	parsed, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	inode, err := txn.ReadInode(ctx, parsed[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%+v\n", *inode)
	return nil
}

func (c *console) getRaw(ctx context.Context, txn *tifs.Txn, args []string) error {
	parsed, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	value, err := txn.GetRaw(ctx, tifs.InodeKey(parsed[0]))
	if err != nil {
		return err
	}
	if value == nil {
		fmt.Fprintln(c.out, "Not Found")
		return nil
	}
	fmt.Fprintf(c.out, "%v\n", value)
	return nil
}

func (c *console) getInline(ctx context.Context, txn *tifs.Txn, args []string) error {
	parsed, err := parseArgs(args, 1)
	if err != nil {
		return err
	}
	inode, err := txn.ReadInode(ctx, parsed[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%v\n", inode.InlineData)
	return nil
}

func (c *console) removeBlock(txn *tifs.Txn, args []string) error {
	parsed, err := parseArgs(args, 2)
	if err != nil {
		return err
	}
	return txn.DeleteRaw(tifs.BlockKey(parsed[0], parsed[1]))
}
