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

// Package logconfig reads the YAML description of a log deployment.
//
// A config file sets the same values as the tilelog command line flags:
//
//	origin: example.com/log
//	storage_system: posix
//	tile_height: 8
//	hash_strategy: RFC6962_SHA256
//	flags:
//	  tile_dir: /var/lib/tilelog
//
// Entries under flags set any other registered flag, such as those of the
// storage providers. Flags given on the command line take precedence.
package logconfig

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
	"k8s.io/klog/v2"
)

// Config describes a log deployment.
type Config struct {
	Origin        string            `yaml:"origin"`
	StorageSystem string            `yaml:"storage_system"`
	TileHeight    int               `yaml:"tile_height"`
	HashStrategy  string            `yaml:"hash_strategy"`
	HTTPEndpoint  string            `yaml:"http_endpoint"`
	RedisAddr     string            `yaml:"redis_addr"`
	RedisTTL      time.Duration     `yaml:"redis_ttl"`
	Flags         map[string]string `yaml:"flags"`
}

// Load reads and parses the config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses a YAML config. Unknown keys are an error.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing log config: %w", err)
	}
	if cfg.TileHeight < 0 {
		return nil, fmt.Errorf("tile_height %d is negative", cfg.TileHeight)
	}
	if cfg.RedisTTL < 0 {
		return nil, errors.New("redis_ttl is negative")
	}
	return &cfg, nil
}

// values returns the flag values set by the config, keyed by flag name.
func (c *Config) values() map[string]string {
	v := make(map[string]string)
	for name, value := range c.Flags {
		v[name] = value
	}
	set := func(name, value string) {
		if value != "" {
			v[name] = value
		}
	}
	set("origin", c.Origin)
	set("storage_system", c.StorageSystem)
	set("hash_strategy", c.HashStrategy)
	set("http_endpoint", c.HTTPEndpoint)
	set("redis_addr", c.RedisAddr)
	if c.TileHeight != 0 {
		v["tile_height"] = strconv.Itoa(c.TileHeight)
	}
	if c.RedisTTL != 0 {
		v["redis_ttl"] = c.RedisTTL.String()
	}
	return v
}

// Apply sets the flags in fs from the config, except for those already set
// on the command line.
func (c *Config) Apply(fs *flag.FlagSet) error {
	explicit := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { explicit[f.Name] = true })

	values := c.values()
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if explicit[name] {
			klog.V(1).Infof("Flag --%s set on the command line, ignoring log config value", name)
			continue
		}
		if fs.Lookup(name) == nil {
			return fmt.Errorf("log config sets unknown flag %q", name)
		}
		if err := fs.Set(name, values[name]); err != nil {
			return fmt.Errorf("log config: flag %q: %w", name, err)
		}
	}
	return nil
}
