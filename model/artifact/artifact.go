// Package artifact identifies prepared validation artifacts.
package artifact

import (
	"fmt"
	"strings"

	"github.com/viant/exq/model/params"
)

// Extension is the cache file extension of prepared artifacts.
const Extension = ".pvf"

// ID identifies an artifact: the code it was prepared from and the
// execution-environment parameters it was prepared under.
type ID struct {
	CodeHash   string
	ParamsHash params.Hash
}

// NewID creates an artifact id
func NewID(codeHash string, executorParams params.ExecutorParams) ID {
	return ID{CodeHash: codeHash, ParamsHash: executorParams.Hash()}
}

// FileName returns the cache file name of the artifact.
func (i ID) FileName() string {
	return i.CodeHash + "_" + i.ParamsHash.String() + Extension
}

// ParseFileName reverses FileName.
func ParseFileName(name string) (ID, error) {
	base := strings.TrimSuffix(name, Extension)
	if base == name {
		return ID{}, fmt.Errorf("not an artifact file: %v", name)
	}
	index := strings.LastIndex(base, "_")
	if index <= 0 {
		return ID{}, fmt.Errorf("invalid artifact file name: %v", name)
	}
	hash, err := params.ParseHash(base[index+1:])
	if err != nil {
		return ID{}, err
	}
	return ID{CodeHash: base[:index], ParamsHash: hash}, nil
}

// String returns a log friendly id
func (i ID) String() string {
	return i.CodeHash + "/" + i.ParamsHash.Short()
}

// PathID is an artifact id together with its resolved location.
type PathID struct {
	ID   ID
	Path string
}
