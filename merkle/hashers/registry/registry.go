// Copyright 2018 Google LLC. All Rights Reserved.
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

// Package registry registers the built-in log hash strategies. Import it for
// its side effects.
package registry

import (
	"crypto"

	"github.com/google/tilelog/merkle/hashers"
	"github.com/google/tilelog/merkle/rfc6962"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Registered hash strategies.
const (
	RFC6962SHA256     hashers.HashStrategy = "RFC6962_SHA256"
	RFC6962SHA3256    hashers.HashStrategy = "RFC6962_SHA3_256"
	RFC6962BLAKE2B256 hashers.HashStrategy = "RFC6962_BLAKE2B_256"
)

func init() {
	hashers.RegisterLogHasher(RFC6962SHA256, func() hashers.LogHasher {
		return rfc6962.New(crypto.SHA256)
	})
	hashers.RegisterLogHasher(RFC6962SHA3256, func() hashers.LogHasher {
		return mustHasher("SHA3-256", sha3.New256().Size(), func(data []byte) []byte {
			h := sha3.Sum256(data)
			return h[:]
		})
	})
	hashers.RegisterLogHasher(RFC6962BLAKE2B256, func() hashers.LogHasher {
		return mustHasher("BLAKE2b-256", blake2b.Size256, func(data []byte) []byte {
			h := blake2b.Sum256(data)
			return h[:]
		})
	})
}

func mustHasher(name string, size int, fn rfc6962.HashFunc) hashers.LogHasher {
	h, err := rfc6962.NewFromFunc(name, size, fn)
	if err != nil {
		panic(err)
	}
	return h
}
