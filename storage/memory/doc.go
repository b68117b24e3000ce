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

// Package memory provides a simple in-process implementation of the storage
// Backend interface.
//
// This implementation is intended for tests, and for short-lived logs that do
// not need to outlive the process.
//
// The storage implementation is based on a BTree, which provides an ordered
// key-value space, so that the keys under a prefix can be listed in order.
package memory
