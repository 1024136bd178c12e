package host

import (
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	nb "github.com/wippyai/nativebridge"
	"github.com/wippyai/nativebridge/errors"
)

// Config configures a managed environment.
type Config struct {
	// Logger overrides the package logger for this environment.
	Logger *zap.Logger

	// HeapBase is the address at which the object heap is mapped.
	HeapBase nb.Addr `validate:"gt=0"`

	// HeapSize is the size of the object heap in bytes.
	HeapSize uint64 `validate:"gte=4096"`
}

// DefaultConfig returns a configuration with a 4 MiB object heap mapped
// at 0x1000_0000.
func DefaultConfig() Config {
	return Config{
		HeapBase: 0x1000_0000,
		HeapSize: 4 << 20,
	}
}

var configValidator = validator.New()

func (c Config) validate() error {
	if err := configValidator.Struct(c); err != nil {
		return errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "invalid host configuration")
	}
	return nil
}
