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
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/google/tilelog/cmd/internal/serverutil"
	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/proof"
	"k8s.io/klog/v2"
)

// env is what a command runs with.
type env struct {
	hasher hashers.LogHasher
	log    *openedLog // nil unless the command uses the log
	stdin  io.Reader
	stdout io.Writer
}

type command struct {
	args             string
	help             string
	minArgs, maxArgs int
	usesLog          bool
	run              func(ctx context.Context, e *env, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"append": {
			args: "[file...]", help: "Append the contents of each file as an entry, or each line of stdin if no files are given",
			maxArgs: -1, usesLog: true, run: runAppend,
		},
		"checkpoint": {
			help: "Print the checkpoint of the log", usesLog: true, run: runCheckpoint,
		},
		"root": {
			args: "[size]", help: "Print the base64 root hash of the log at a size, by default the current one",
			maxArgs: 1, usesLog: true, run: runRoot,
		},
		"inclusion": {
			args: "<size> <index>", help: "Print the proof that the leaf at index is in the log at size",
			minArgs: 2, maxArgs: 2, usesLog: true, run: runInclusion,
		},
		"consistency": {
			args: "<old> <new>", help: "Print the proof that the log at size new extends the log at size old",
			minArgs: 2, maxArgs: 2, usesLog: true, run: runConsistency,
		},
		"verify-inclusion": {
			args: "<entry-file> <proof-file> <root>", help: "Check an inclusion proof against a base64 root hash",
			minArgs: 3, maxArgs: 3, run: runVerifyInclusion,
		},
		"verify-consistency": {
			args: "<proof-file> <old-root> <new-root>", help: "Check a consistency proof between two base64 root hashes",
			minArgs: 3, maxArgs: 3, run: runVerifyConsistency,
		},
		"sequence": {
			help: "Append each line of stdin as an entry, in batches, until stdin ends. Serves metrics on --http_endpoint",
			usesLog: true, run: runSequence,
		},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// run runs the named command, writing its output to stdout.
func run(ctx context.Context, name string, args []string, stdin io.Reader, stdout io.Writer) error {
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q, want one of %v", name, commandNames())
	}
	if len(args) < c.minArgs || (c.maxArgs >= 0 && len(args) > c.maxArgs) {
		return fmt.Errorf("usage: %s %s", name, c.args)
	}
	hasher, err := hashers.NewLogHasher(hashers.HashStrategy(*hashStrategy))
	if err != nil {
		return err
	}
	e := &env{hasher: hasher, stdin: stdin, stdout: stdout}
	if c.usesLog {
		if e.log, err = openLog(ctx, hasher); err != nil {
			return err
		}
		defer e.log.close()
	}
	return c.run(ctx, e, args)
}

func parseSize(name, s string) (uint64, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %v", name, s, err)
	}
	return v, nil
}

func parseRoot(name, s string, hasher hashers.LogHasher) ([]byte, error) {
	root, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %v", name, err)
	}
	if got, want := len(root), hasher.Size(); got != want {
		return nil, fmt.Errorf("%s is %d bytes, want %d", name, got, want)
	}
	return root, nil
}

func runAppend(ctx context.Context, e *env, args []string) error {
	var entries [][]byte
	if len(args) == 0 {
		s := bufio.NewScanner(e.stdin)
		for s.Scan() {
			entries = append(entries, append([]byte(nil), s.Bytes()...))
		}
		if err := s.Err(); err != nil {
			return fmt.Errorf("reading entries: %v", err)
		}
	}
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		entries = append(entries, data)
	}
	if len(entries) == 0 {
		return errors.New("no entries to append")
	}

	first, err := e.log.log.AppendBatch(ctx, entries)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "appended %d entries at index %d\n", len(entries), first)
	_, err = e.stdout.Write(e.log.log.Checkpoint().Marshal())
	return err
}

func runCheckpoint(_ context.Context, e *env, _ []string) error {
	_, err := e.stdout.Write(e.log.log.Checkpoint().Marshal())
	return err
}

func runRoot(ctx context.Context, e *env, args []string) error {
	size := e.log.log.Size()
	if len(args) == 1 {
		var err error
		if size, err = parseSize("size", args[0]); err != nil {
			return err
		}
	}
	root, err := e.log.log.RootAt(ctx, size)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(e.stdout, base64.StdEncoding.EncodeToString(root))
	return err
}

func runInclusion(ctx context.Context, e *env, args []string) error {
	size, err := parseSize("size", args[0])
	if err != nil {
		return err
	}
	index, err := parseSize("index", args[1])
	if err != nil {
		return err
	}
	p, err := e.log.log.InclusionProof(ctx, size, index)
	if err != nil {
		return err
	}
	return writeProof(e.stdout, *proofFormat, p)
}

func runConsistency(ctx context.Context, e *env, args []string) error {
	oldSize, err := parseSize("old size", args[0])
	if err != nil {
		return err
	}
	newSize, err := parseSize("new size", args[1])
	if err != nil {
		return err
	}
	p, err := e.log.log.ConsistencyProof(ctx, oldSize, newSize)
	if err != nil {
		return err
	}
	return writeProof(e.stdout, *proofFormat, p)
}

func runVerifyInclusion(_ context.Context, e *env, args []string) error {
	entry, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	var p proof.InclusionProof
	if err := readProof(args[1], *proofFormat, &p); err != nil {
		return err
	}
	root, err := parseRoot("root", args[2], e.hasher)
	if err != nil {
		return err
	}
	if err := proof.VerifyInclusion(e.hasher, p.LeafIndex, p.TreeSize, e.hasher.HashLeaf(entry), p.Path, root); err != nil {
		return fmt.Errorf("inclusion proof does not verify: %v", err)
	}
	_, err = fmt.Fprintf(e.stdout, "entry is at index %d of the log at size %d\n", p.LeafIndex, p.TreeSize)
	return err
}

func runVerifyConsistency(_ context.Context, e *env, args []string) error {
	var p proof.ConsistencyProof
	if err := readProof(args[0], *proofFormat, &p); err != nil {
		return err
	}
	oldRoot, err := parseRoot("old root", args[1], e.hasher)
	if err != nil {
		return err
	}
	newRoot, err := parseRoot("new root", args[2], e.hasher)
	if err != nil {
		return err
	}
	if err := proof.VerifyConsistency(e.hasher, p.OldSize, p.NewSize, p.Path, oldRoot, newRoot); err != nil {
		return fmt.Errorf("consistency proof does not verify: %v", err)
	}
	_, err = fmt.Fprintf(e.stdout, "log at size %d extends log at size %d\n", p.NewSize, p.OldSize)
	return err
}

func runSequence(ctx context.Context, e *env, _ []string) error {
	if *httpEndpoint != "" {
		m := &serverutil.Main{
			HTTPEndpoint: *httpEndpoint,
			TLSCertFile:  *tlsCertFile,
			TLSKeyFile:   *tlsKeyFile,
			IsHealthy: func(ctx context.Context) error {
				_, err := e.log.log.RootAt(ctx, e.log.log.Size())
				return err
			},
		}
		sctx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := m.Run(sctx); err != nil {
				klog.Errorf("HTTP server: %v", err)
			}
		}()
	}
	s := &sequencer{
		log:       e.log.log,
		out:       e.stdout,
		batchSize: *batchSize,
		interval:  *sequencerInterval,
	}
	if err := s.run(ctx, e.stdin); err != nil {
		return err
	}
	_, err := e.stdout.Write(e.log.log.Checkpoint().Marshal())
	return err
}
