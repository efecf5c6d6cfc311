//go:build !unix

package mmap

import (
	"os"

	"github.com/cockroachdb/errors"
)

var errUnsupported = errors.New("mmap: not supported on this platform")

type Region struct{}

func Anonymous(int, Flags) (*Region, error)         { return nil, errUnsupported }
func MapFile(*os.File, int, Flags) (*Region, error) { return nil, errUnsupported }
func (r *Region) Bytes() []byte                     { return nil }
func (r *Region) Len() int                          { return 0 }
func (r *Region) Protect() error                    { return errUnsupported }
func (r *Region) Advise(Flags) error                { return errUnsupported }
func (r *Region) Close() error                      { return nil }
