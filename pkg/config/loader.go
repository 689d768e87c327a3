package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/noironetworks/neutron/pkg/engine"
)

// Format is the syntax of a configuration file.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from the file extension. Unknown extensions
// are read as YAML.
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".cue") {
		return FormatCUE
	}
	return FormatYAML
}

var validate = validator.New()

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return Parse(content, FormatOf(path), path)
}

// Parse decodes a configuration document. name is used in error positions.
func Parse(content []byte, format Format, name string) (*Config, error) {
	var doc []byte
	switch format {
	case FormatCUE:
		out, err := cueToYAML(content, name)
		if err != nil {
			return nil, err
		}
		doc = out
	case FormatYAML:
		doc = content
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(doc))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, ValidationErrors{{File: name, Message: err.Error()}}
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// cueToYAML unifies a CUE document with the schema and renders the result
// as YAML so both formats share one decoder.
func cueToYAML(content []byte, name string) ([]byte, error) {
	ctx, schema, err := loadSchema()
	if err != nil {
		return nil, err
	}

	val := ctx.CompileBytes(content, cue.Filename(name))
	if err := val.Err(); err != nil {
		return nil, convertCUEErrors(err)
	}

	unified := schema.Unify(val)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, convertCUEErrors(err)
	}

	var data map[string]interface{}
	if err := unified.Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return yaml.Marshal(data)
}

// Validate checks field constraints that span the whole configuration.
func (c *Config) Validate() error {
	var errs ValidationErrors

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return err
		}
		for _, fe := range verrs {
			errs = append(errs, ValidationError{
				Path:    fe.Namespace(),
				Message: fmt.Sprintf("failed on the %q rule", fe.Tag()),
			})
		}
	}

	if err := c.APIC.Validate(); err != nil {
		errs = append(errs, ValidationError{Path: "apic", Message: err.Error()})
	}
	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, ValidationError{Path: "telemetry", Message: err.Error()})
	}
	if _, _, err := c.Engine.VlanBounds(); err != nil {
		errs = append(errs, ValidationError{Path: "engine.vlan_range", Message: err.Error()})
	}
	for sw, ports := range c.Engine.Switches {
		for port := range ports {
			if _, _, err := engine.SplitModulePort(port); err != nil {
				errs = append(errs, ValidationError{Path: "engine.switches." + sw, Message: err.Error()})
			}
		}
	}
	if c.Discovery.Enabled {
		if len(c.Discovery.Hosts) == 0 {
			errs = append(errs, ValidationError{Path: "discovery.hosts", Message: "discovery is enabled but no hosts are listed"})
		}
		for _, h := range c.Discovery.Hosts {
			if len(c.Discovery.Uplinks(h)) == 0 {
				errs = append(errs, ValidationError{Path: "discovery.hosts." + h.Name, Message: "no uplink ports"})
			}
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
