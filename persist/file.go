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
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

type (
	// FilePersister implements CheckpointPersister for saving to the file system
	FilePersister struct {
		directory string
		mu        sync.Mutex
	}
)

// NewFilePersister creates a FilePersister for saving to a given directory
func NewFilePersister(directory string) (*FilePersister, error) {
	err := os.MkdirAll(directory, 0777)
	return &FilePersister{
		directory: directory,
	}, err
}

// Write will write a checkpoint to the file system. The file is replaced atomically so a crash never leaves a
// partially written checkpoint behind.
func (fp *FilePersister) Write(_ context.Context, namespace, name, consumerGroup, partitionID string, checkpoint Checkpoint) error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	bits, err := json.Marshal(checkpoint)
	if err != nil {
		return err
	}

	target := fp.fileName(namespace, name, consumerGroup, partitionID)
	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, bits, 0644); err != nil {
		return errors.Wrapf(err, "writing checkpoint for partition %s", partitionID)
	}
	return os.Rename(tmp, target)
}

// Read will read the last checkpoint for the given partition from the file system
func (fp *FilePersister) Read(_ context.Context, namespace, name, consumerGroup, partitionID string) (Checkpoint, error) {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	key := getPersistenceKey(namespace, name, consumerGroup, partitionID)
	bits, err := os.ReadFile(fp.fileName(namespace, name, consumerGroup, partitionID))
	if err != nil {
		if os.IsNotExist(err) {
			return Checkpoint{}, errors.Wrapf(ErrNotFound, "no checkpoint file for the key %s", key)
		}
		return Checkpoint{}, err
	}

	var checkpoint Checkpoint
	if err := json.Unmarshal(bits, &checkpoint); err != nil {
		return Checkpoint{}, errors.Wrapf(err, "checkpoint file for the key %s is corrupt", key)
	}
	return checkpoint, nil
}

func (fp *FilePersister) fileName(namespace, name, consumerGroup, partitionID string) string {
	key := strings.Join([]string{namespace, name, consumerGroup, partitionID}, "_")
	return filepath.Join(fp.directory, key+".json")
}
