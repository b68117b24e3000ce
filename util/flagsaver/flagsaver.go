// Copyright 2017 Google LLC. All Rights Reserved.
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

// Package flagsaver saves and restores command line flag values, so tests of
// flag-configured providers can change flags without leaking them into other
// tests:
//
//	func TestFoo(t *testing.T) {
//		defer flagsaver.Save().MustRestore()
//		flag.Set("tile_dir", t.TempDir())
//		...
//	}
package flagsaver

import (
	"flag"
	"strings"

	"k8s.io/klog/v2"
)

// Stash holds flag values captured by Save.
type Stash struct {
	flags map[string]string
}

// Save captures the current value of every registered flag, except the ones
// owned by the testing package.
func Save() *Stash {
	s := &Stash{flags: make(map[string]string)}
	flag.VisitAll(func(f *flag.Flag) {
		// log_backtrace_at cannot be set back to its empty default.
		if strings.HasPrefix(f.Name, "test.") || f.Name == "log_backtrace_at" {
			return
		}
		s.flags[f.Name] = f.Value.String()
	})
	return s
}

// Restore sets all saved flags back to their captured values.
func (s *Stash) Restore() error {
	for name, value := range s.flags {
		if err := flag.Set(name, value); err != nil {
			return err
		}
	}
	return nil
}

// MustRestore calls Restore and exits the process if it fails.
func (s *Stash) MustRestore() {
	if err := s.Restore(); err != nil {
		klog.Exitf("MustRestore(): failed to restore flags: %v", err)
	}
}
