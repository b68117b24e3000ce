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

// The tilelog binary appends to a tiled transparency log, and produces and
// checks proofs for it.
//
// Usage:
//
//	tilelog [flags] <command> [args]
//
// Run tilelog with no arguments for the list of commands.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis"
	"github.com/google/tilelog/cmd"
	"github.com/google/tilelog/cmd/internal/logconfig"
	"github.com/google/tilelog/cmd/internal/provider"
	"github.com/google/tilelog/log"
	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/hashers/registry"
	"github.com/google/tilelog/monitoring"
	"github.com/google/tilelog/monitoring/prometheus"
	"github.com/google/tilelog/storage"
	"github.com/google/tilelog/storage/rediscache"
	"k8s.io/klog/v2"
)

var (
	storageSystem      = flag.String("storage_system", provider.DefaultStorageSystem, fmt.Sprintf("Storage system to use. One of: %v", storage.Providers()))
	tileHeight         = flag.Int("tile_height", 8, "Height of the tiles holding the tree hashes. Must not change for an existing log")
	hashStrategy       = flag.String("hash_strategy", string(registry.RFC6962SHA256), fmt.Sprintf("Hash strategy of the tree. One of: %v", hashers.LogHashers()))
	origin             = flag.String("origin", "", "Name of the log. Required to create a log, and checked against the checkpoint of an existing one")
	maxConcurrentReads = flag.Int("max_concurrent_reads", 16, "Maximum number of tiles read from storage at once. Zero means no limit")
	redisAddr          = flag.String("redis_addr", "", "If set, address of a Redis server caching full tiles")
	redisTTL           = flag.Duration("redis_ttl", 24*time.Hour, "Expiry of tiles cached in Redis. Zero means no expiry")
	httpEndpoint       = flag.String("http_endpoint", "", "Endpoint for HTTP metrics and health checks of the sequence command (host:port, empty means disabled)")
	tlsCertFile        = flag.String("tls_cert_file", "", "Path to the TLS server certificate. If unset, the server will use unsecured connections.")
	tlsKeyFile         = flag.String("tls_key_file", "", "Path to the TLS server key. If unset, the server will use unsecured connections.")
	sequencerInterval  = flag.Duration("sequencer_interval", 100*time.Millisecond, "Maximum time an entry read by the sequence command waits to be appended")
	batchSize          = flag.Int("batch_size", 1000, "Max number of entries appended per batch by the sequence command")
	proofFormat        = flag.String("proof_format", "text", "Encoding of proofs written and read by the proof commands: text, binary or cbor")
	configFile         = flag.String("config", "", "Config file containing flags, file contents can be overridden by command line flags")
	logConfigFile      = flag.String("log_config", "", "YAML file describing the log, overridden by command line flags")
)

// metricFactory is used by the log and its storage.
var metricFactory monitoring.MetricFactory = prometheus.MetricFactory{Prefix: "tilelog_"}

func usage() {
	fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <command> [args]\n\nCommands:\n", os.Args[0])
	for _, name := range commandNames() {
		fmt.Fprintf(flag.CommandLine.Output(), "  %-20s %s\n", name+" "+commands[name].args, commands[name].help)
	}
	fmt.Fprintln(flag.CommandLine.Output(), "\nFlags:")
	flag.PrintDefaults()
}

func main() {
	klog.InitFlags(nil)
	flag.Usage = usage
	flag.Parse()
	defer klog.Flush()

	if *configFile != "" {
		if err := cmd.ParseFlagFile(*configFile); err != nil {
			klog.Exitf("Failed to load flags from config file %q: %s", *configFile, err)
		}
	}
	if *logConfigFile != "" {
		cfg, err := logconfig.Load(*logConfigFile)
		if err != nil {
			klog.Exitf("Failed to load log config %q: %v", *logConfigFile, err)
		}
		if err := cfg.Apply(flag.CommandLine); err != nil {
			klog.Exitf("Failed to apply log config %q: %v", *logConfigFile, err)
		}
	}

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, flag.Arg(0), flag.Args()[1:], os.Stdin, os.Stdout); err != nil {
		klog.Exitf("%s: %v", flag.Arg(0), err)
	}
}

// openedLog is a log opened on the configured storage.
type openedLog struct {
	log   *log.Log
	tiles *storage.TileStore
	close func()
}

// openLog opens the log described by the flags.
func openLog(ctx context.Context, hasher hashers.LogHasher) (*openedLog, error) {
	sp, err := storage.NewProvider(*storageSystem, metricFactory)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage provider: %v", err)
	}
	closers := []func() error{sp.Close}
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i](); err != nil {
				klog.Errorf("Close: %v", err)
			}
		}
	}

	opts := storage.TileStoreOptions{
		MaxConcurrentReads: *maxConcurrentReads,
		MetricFactory:      metricFactory,
	}
	if *redisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: *redisAddr})
		closers = append(closers, client.Close)
		opts.Cache = rediscache.New(client, fmt.Sprintf("tilelog/%s/", *origin), *redisTTL)
	}
	tiles, err := storage.NewTileStore(sp.Backend(), *tileHeight, hasher.Size(), opts)
	if err != nil {
		closeAll()
		return nil, err
	}
	l, err := log.Open(ctx, hasher, tiles, sp.Backend(), log.Options{
		Origin:        *origin,
		MetricFactory: metricFactory,
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	klog.V(1).Infof("Opened log %s on %s storage at %s", l.Origin(), *storageSystem, l.Checkpoint())
	return &openedLog{log: l, tiles: tiles, close: closeAll}, nil
}
