package persist

//	MIT License
//
//	Copyright (c) Microsoft Corporation. All rights reserved.
//
//	Permission is hereby granted, free of charge, to any person obtaining a copy
//	of this software and associated documentation files (the "Software"), to deal
//	in the Software without restriction, including without limitation the rights
//	to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
//	copies of the Software, and to permit persons to whom the Software is
//	furnished to do so, subject to the following conditions:
//
//	The above copyright notice and this permission notice shall be included in all
//	copies or substantial portions of the Software.
//
//	THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
//	IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
//	FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
//	AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
//	LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
//	OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
//	SOFTWARE

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	namespace   = "namespace"
	name        = "name"
	group       = "$Default"
	partitionID = "0"
)

func TestFilePersister_ReadMissing(t *testing.T) {
	persister, err := NewFilePersister(filepath.Join(t.TempDir(), "read"))
	require.NoError(t, err)

	_, err = persister.Read(context.Background(), namespace, name, group, partitionID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFilePersister_ReadIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	err := os.WriteFile(filepath.Join(dir, "hello.json"), []byte("hello\nworld\n"), 0644)
	require.NoError(t, err)

	persister, err := NewFilePersister(dir)
	require.NoError(t, err)
	_, err = persister.Read(context.Background(), namespace, name, group, partitionID)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestFilePersister_ReadCorrupt(t *testing.T) {
	dir := t.TempDir()
	persister, err := NewFilePersister(dir)
	require.NoError(t, err)

	err = os.WriteFile(persister.fileName(namespace, name, group, partitionID), []byte("{not json"), 0644)
	require.NoError(t, err)

	_, err = persister.Read(context.Background(), namespace, name, group, partitionID)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestFilePersister_Write(t *testing.T) {
	persister, err := NewFilePersister(filepath.Join(t.TempDir(), "write"))
	require.NoError(t, err)

	ctx := context.Background()
	ckp := NewCheckpoint("120", 22, time.Now())
	require.NoError(t, persister.Write(ctx, namespace, name, group, partitionID, ckp))

	ckp2, err := persister.Read(ctx, namespace, name, group, partitionID)
	require.NoError(t, err)
	assert.Equal(t, ckp.Offset, ckp2.Offset)
	assert.Equal(t, ckp.SequenceNumber, ckp2.SequenceNumber)

	// no temp file is left behind after the rename
	_, err = os.Stat(persister.fileName(namespace, name, group, partitionID) + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestMemoryPersister(t *testing.T) {
	ctx := context.Background()
	persister := NewMemoryPersister()

	_, err := persister.Read(ctx, namespace, name, group, partitionID)
	assert.True(t, errors.Is(err, ErrNotFound))

	ckp := NewCheckpoint("42", 7, time.Now())
	require.NoError(t, persister.Write(ctx, namespace, name, group, partitionID, ckp))
	read, err := persister.Read(ctx, namespace, name, group, partitionID)
	require.NoError(t, err)
	assert.Equal(t, ckp, read)

	_, err = persister.Read(ctx, namespace, name, group, "1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestCheckpoint_Before(t *testing.T) {
	start := NewCheckpointFromStartOfStream()
	assert.True(t, start.Before(NewCheckpoint("0", 0, time.Time{})))
	assert.False(t, NewCheckpoint("5", 5, time.Time{}).Before(NewCheckpoint("5", 5, time.Time{})))
	assert.Equal(t, "namespace/name/$Default/0", Key(namespace, name, group, partitionID))
}
