package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/bundleforge/bferr"
)

// Load reads a YAML profile file, expands environment variables, and
// unmarshals into a Profile. Unknown keys are rejected to catch typos
// early, matching quarry/cli/config/load.go's KnownFields(true) choice.
func Load(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, bferr.Wrap(bferr.NotFound, "config.Load", err)
		}
		return nil, bferr.Wrap(bferr.IO, "config.Load", err)
	}

	expanded := ExpandEnv(string(data))

	var p Profile
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return nil, bferr.Wrap(bferr.InvalidArgument, "config.Load", err)
	}

	return &p, nil
}
