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
	"encoding"
	"fmt"
	"io"
	"os"
)

// marshaler is implemented by the proof types of package proof.
type marshaler interface {
	encoding.TextMarshaler
	encoding.BinaryMarshaler
	MarshalCBOR() ([]byte, error)
}

type unmarshaler interface {
	encoding.TextUnmarshaler
	encoding.BinaryUnmarshaler
	UnmarshalCBOR([]byte) error
}

func marshalProof(format string, p marshaler) ([]byte, error) {
	switch format {
	case "text":
		return p.MarshalText()
	case "binary":
		return p.MarshalBinary()
	case "cbor":
		return p.MarshalCBOR()
	}
	return nil, fmt.Errorf("unknown proof format %q", format)
}

func unmarshalProof(format string, data []byte, p unmarshaler) error {
	switch format {
	case "text":
		return p.UnmarshalText(data)
	case "binary":
		return p.UnmarshalBinary(data)
	case "cbor":
		return p.UnmarshalCBOR(data)
	}
	return fmt.Errorf("unknown proof format %q", format)
}

func writeProof(w io.Writer, format string, p marshaler) error {
	data, err := marshalProof(format, p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readProof(path, format string, p unmarshaler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := unmarshalProof(format, data, p); err != nil {
		return fmt.Errorf("reading proof from %s: %v", path, err)
	}
	return nil
}
