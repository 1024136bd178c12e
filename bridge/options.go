package bridge

import (
	"io"
	"strings"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"

	"github.com/wippyai/nativebridge/errors"
)

// Options configures a Context.
type Options struct {
	// Logger overrides the package logger for this context.
	Logger *zap.Logger `toml:"-"`

	// OnFatal receives invariant violations. When nil, the error is logged
	// and the bridge panics with it. A handler that returns lets the failing
	// operation report the error to its caller instead.
	OnFatal func(*errors.Error) `toml:"-"`

	// PrintLeakWarnings logs leaked instances, types and keep-alive lists on Close.
	PrintLeakWarnings bool `toml:"print_leak_warnings"`

	// PrintImplicitCastWarnings logs implicit conversions whose constructor failed.
	PrintImplicitCastWarnings bool `toml:"print_implicit_cast_warnings"`

	// StrictLayout rejects types whose instance layout is smaller than their base's.
	StrictLayout bool `toml:"strict_layout"`
}

// DefaultOptions returns options with both warning categories enabled.
func DefaultOptions() Options {
	return Options{
		PrintLeakWarnings:         true,
		PrintImplicitCastWarnings: true,
	}
}

// LoadOptions reads options from a TOML file on top of DefaultOptions.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	md, err := toml.DecodeFile(path, &opts)
	if err != nil {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot load options from "+path)
	}
	if err := undecoded(md); err != nil {
		return Options{}, err
	}
	return opts, nil
}

// DecodeOptions reads TOML options from r on top of DefaultOptions.
func DecodeOptions(r io.Reader) (Options, error) {
	opts := DefaultOptions()
	md, err := toml.NewDecoder(r).Decode(&opts)
	if err != nil {
		return Options{}, errors.Wrap(errors.PhaseConfig, errors.KindInvalidInput, err, "cannot decode options")
	}
	if err := undecoded(md); err != nil {
		return Options{}, err
	}
	return opts, nil
}

func undecoded(md toml.MetaData) error {
	keys := md.Undecoded()
	if len(keys) == 0 {
		return nil
	}
	names := make([]string, len(keys))
	for i, k := range keys {
		names[i] = k.String()
	}
	return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
		Value(names).
		Detail("unknown option(s): %s", strings.Join(names, ", ")).
		Build()
}
