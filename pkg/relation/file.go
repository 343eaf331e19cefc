// Copyright 2022 Matrix Origin
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package relation

import (
	"bufio"
	"context"
	"encoding/binary"
	"io"
	"os"

	"github.com/pierrec/lz4"

	"github.com/matrixorigin/npjoin/pkg/common/moerr"
	"github.com/matrixorigin/npjoin/pkg/container/types"
)

// A relation file is a fixed header followed by an lz4 frame of little
// endian key and payload pairs.
const (
	fileMagic   uint32 = 0x524a504e // "NPJR"
	fileVersion uint32 = 1
	headerSize         = 16
)

func WriteFile(ctx context.Context, path string, rel types.Relation) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = moerr.ConvertGoError(ctx, cerr)
		}
	}()

	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:], fileMagic)
	binary.LittleEndian.PutUint32(hdr[4:], fileVersion)
	binary.LittleEndian.PutUint64(hdr[8:], uint64(rel.NumTuples()))
	if _, err = f.Write(hdr[:]); err != nil {
		return moerr.ConvertGoError(ctx, err)
	}

	zw := lz4.NewWriter(f)
	bw := bufio.NewWriter(zw)
	var buf [types.TupleSize]byte
	for _, t := range rel.Tuples {
		binary.LittleEndian.PutUint64(buf[0:], uint64(t.Key))
		binary.LittleEndian.PutUint64(buf[8:], uint64(t.Payload))
		if _, err = bw.Write(buf[:]); err != nil {
			return moerr.ConvertGoError(ctx, err)
		}
	}
	if err = bw.Flush(); err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	if err = zw.Close(); err != nil {
		return moerr.ConvertGoError(ctx, err)
	}
	return nil
}

func ReadFile(ctx context.Context, path string) (types.Relation, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.Relation{}, moerr.ConvertGoError(ctx, err)
	}
	defer f.Close()

	var hdr [headerSize]byte
	if _, err := io.ReadFull(f, hdr[:]); err != nil {
		return types.Relation{}, moerr.NewBadFile(ctx, path, "short header: %v", err)
	}
	if m := binary.LittleEndian.Uint32(hdr[0:]); m != fileMagic {
		return types.Relation{}, moerr.NewBadFile(ctx, path, "bad magic %#x", m)
	}
	if v := binary.LittleEndian.Uint32(hdr[4:]); v != fileVersion {
		return types.Relation{}, moerr.NewBadFile(ctx, path, "unsupported version %d", v)
	}
	n := binary.LittleEndian.Uint64(hdr[8:])
	if n > uint64(maxTuples) {
		return types.Relation{}, moerr.NewBadFile(ctx, path, "too many tuples %d", n)
	}

	br := bufio.NewReader(lz4.NewReader(f))
	tuples := make([]types.Tuple, n)
	var buf [types.TupleSize]byte
	for i := range tuples {
		if _, err := io.ReadFull(br, buf[:]); err != nil {
			return types.Relation{}, moerr.NewBadFile(ctx, path, "tuple %d of %d: %v", i, n, err)
		}
		tuples[i].Key = int64(binary.LittleEndian.Uint64(buf[0:]))
		tuples[i].Payload = int64(binary.LittleEndian.Uint64(buf[8:]))
	}
	return types.NewRelation(tuples), nil
}

// maxTuples bounds the tuple count a header may claim.
const maxTuples = 1 << 34
