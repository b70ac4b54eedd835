package main

import (
	"github.com/aligator/fatdisk"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v2"
)

// loadParams starts with the named preset and applies the values of the YAML file at path on top, if given.
func loadParams(fs afero.Fs, preset, path string) (fatdisk.Params, error) {
	params, ok := fatdisk.Preset(preset)
	if !ok {
		return fatdisk.Params{}, errors.Errorf("unknown preset %q", preset)
	}

	if path == "" {
		return params, nil
	}

	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return fatdisk.Params{}, errors.Wrapf(err, "failed to read %q", path)
	}
	if err := yaml.UnmarshalStrict(data, &params); err != nil {
		return fatdisk.Params{}, errors.Wrapf(err, "failed to parse %q", path)
	}

	return params, nil
}
