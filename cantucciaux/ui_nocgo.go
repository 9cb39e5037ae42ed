//go:build tinygo || !cgo

package cantucciaux

import (
	"errors"

	"github.com/soypat/cantucci"
)

func ui(s cantucci.Shape, cfg UIConfig) error {
	return errors.New("require cgo for UI rendering")
}
