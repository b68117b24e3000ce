// Copyright 2026 Google LLC. All Rights Reserved.
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

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/tilelog/log"
	"k8s.io/klog/v2"
)

// sequencer appends entries read from a stream to a log in batches. A batch
// is appended once it holds batchSize entries, or interval after the last
// append, whichever comes first.
type sequencer struct {
	log       *log.Log
	out       io.Writer
	batchSize int
	interval  time.Duration
}

// run appends the lines read from in until it ends or ctx is done.
//
// If in is an io.Closer, run closes it before returning, which releases the
// goroutine blocked reading from it. Otherwise that goroutine exits once its
// pending read returns.
func (s *sequencer) run(ctx context.Context, in io.Reader) error {
	if s.batchSize <= 0 || s.interval <= 0 {
		return errors.New("batch size and interval must be positive")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if c, ok := in.(io.Closer); ok {
			if err := c.Close(); err != nil {
				klog.V(1).Infof("Closing input: %v", err)
			}
		}
	}()

	entries := make(chan []byte, s.batchSize)
	readErr := make(chan error, 1)
	go func() {
		defer close(entries)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case entries <- append([]byte(nil), sc.Bytes()...):
			case <-ctx.Done():
				return
			}
		}
		readErr <- sc.Err()
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	var batch [][]byte
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		first, err := s.log.AppendBatch(ctx, batch)
		if err != nil {
			return fmt.Errorf("appending %d entries: %w", len(batch), err)
		}
		klog.V(1).Infof("Appended %d entries at index %d", len(batch), first)
		fmt.Fprintf(s.out, "appended %d entries at index %d\n", len(batch), first)
		batch = nil
		return nil
	}

	for {
		select {
		case e, ok := <-entries:
			if !ok {
				if err := flush(); err != nil {
					return err
				}
				select {
				case err := <-readErr:
					return err
				default:
					return ctx.Err()
				}
			}
			batch = append(batch, e)
			if len(batch) >= s.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
