// Package params models the execution-environment parameter set a worker is
// initialised with. Two jobs can share a worker only when their parameter
// sets hash identically.
package params

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Known parameter names.
const (
	MaxMemoryPages       = "maxMemoryPages"
	StackLogicalMax      = "stackLogicalMax"
	StackNativeMax       = "stackNativeMax"
	PrecheckingMaxMemory = "precheckingMaxMemory"
	PrepareTimeoutMs     = "prepareTimeoutMs"
	ExecuteTimeoutMs     = "executeTimeoutMs"
	WasmExtBulkMemory    = "wasmExtBulkMemory"
)

// Param is a single execution-environment setting.
type Param struct {
	Name  string `json:"name" yaml:"name"`
	Value uint64 `json:"value" yaml:"value"`
}

// Hash is the content hash of a parameter set.
type Hash [32]byte

// String returns the hex form of the hash
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// ParseHash decodes the hex form returned by String.
func ParseHash(encoded string) (Hash, error) {
	var ret Hash
	data, err := hex.DecodeString(encoded)
	if err != nil {
		return ret, fmt.Errorf("invalid params hash %q: %w", encoded, err)
	}
	if len(data) != len(ret) {
		return ret, fmt.Errorf("invalid params hash length: %d", len(data))
	}
	copy(ret[:], data)
	return ret, nil
}

// Short returns an abbreviated hash for log fields.
func (h Hash) Short() string {
	return h.String()[:12]
}

// ExecutorParams is an ordered execution-environment parameter set. Order is
// significant: the same settings listed in a different order hash
// differently.
type ExecutorParams []Param

// Hash returns the blake2b-256 digest of the canonical encoding.
func (p ExecutorParams) Hash() Hash {
	hasher, _ := blake2b.New256(nil)
	var buf [8]byte
	binary.BigEndian.PutUint32(buf[:4], uint32(len(p)))
	hasher.Write(buf[:4])
	for _, param := range p {
		binary.BigEndian.PutUint32(buf[:4], uint32(len(param.Name)))
		hasher.Write(buf[:4])
		hasher.Write([]byte(param.Name))
		binary.BigEndian.PutUint64(buf[:], param.Value)
		hasher.Write(buf[:])
	}
	var ret Hash
	copy(ret[:], hasher.Sum(nil))
	return ret
}

// Lookup returns the value of the named parameter.
func (p ExecutorParams) Lookup(name string) (uint64, bool) {
	for _, param := range p {
		if param.Name == name {
			return param.Value, true
		}
	}
	return 0, false
}

// Encode renders the set as "name=value,name=value" for passing to a worker
// process environment.
func (p ExecutorParams) Encode() string {
	parts := make([]string, 0, len(p))
	for _, param := range p {
		parts = append(parts, param.Name+"="+strconv.FormatUint(param.Value, 10))
	}
	return strings.Join(parts, ",")
}

// Decode parses the output of Encode.
func Decode(encoded string) (ExecutorParams, error) {
	if encoded == "" {
		return ExecutorParams{}, nil
	}
	parts := strings.Split(encoded, ",")
	ret := make(ExecutorParams, 0, len(parts))
	for _, part := range parts {
		name, value, ok := strings.Cut(part, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid executor param: %q", part)
		}
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid executor param %v value: %w", name, err)
		}
		ret = append(ret, Param{Name: name, Value: v})
	}
	return ret, nil
}
