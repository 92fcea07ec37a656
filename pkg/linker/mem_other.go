//go:build !linux && !darwin && !freebsd

package linker

import (
	"github.com/GriffinCanCode/typthon-jit/pkg/codegen"
	"github.com/pkg/errors"
)

type codePage struct {
	mem []byte
}

func mapCode(code []byte) (*codePage, error) {
	return nil, errors.Wrap(codegen.ErrUnsupportedPlatform, "no executable memory on this OS")
}

func (p *codePage) free() error { return nil }
