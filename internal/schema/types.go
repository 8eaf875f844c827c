// Package schema describes the per data type column mappings applied to
// entry files.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

var (
	ErrUnknownDataType  = errors.New("unknown data type")
	ErrDataTypeDisabled = errors.New("data type disabled")
	ErrUnknownColumn    = errors.New("output column not declared as input column")
	ErrSchemaMismatch   = errors.New("file does not match schema")
	ErrInvalidConfig    = errors.New("invalid schema configuration")
)

var validate = validator.New()

// DataType maps one category of delimited file from its input columns to its
// output columns.
type DataType struct {
	Name          string   `json:"name" validate:"required"`
	Enabled       bool     `json:"enabled"`
	InputColumns  []string `json:"inputColumns" validate:"required,min=1,dive,required"`
	OutputColumns []string `json:"outputColumns" validate:"required,min=1,dive,required"`
}

// Config is the schema configuration document.
type Config struct {
	Version      string     `json:"version"`
	OutputBucket string     `json:"outputBucket"`
	DataTypes    []DataType `json:"dataTypes" validate:"required,min=1,unique=Name,dive"`

	byName map[string]*DataType
}

// ParseConfig decodes and validates a schema configuration document.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validate.Struct(&cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	for _, dt := range cfg.DataTypes {
		if dups := lo.FindDuplicates(dt.InputColumns); len(dups) > 0 {
			return nil, fmt.Errorf("%w: data type %s repeats input columns %v", ErrInvalidConfig, dt.Name, dups)
		}
	}

	cfg.byName = make(map[string]*DataType, len(cfg.DataTypes))
	for i := range cfg.DataTypes {
		cfg.byName[cfg.DataTypes[i].Name] = &cfg.DataTypes[i]
	}
	return &cfg, nil
}

// DataType returns the enabled data type called name.
func (c *Config) DataType(name string) (*DataType, error) {
	dt, ok := c.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDataType, name)
	}
	if !dt.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrDataTypeDisabled, name)
	}
	return dt, nil
}
