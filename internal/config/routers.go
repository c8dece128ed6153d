package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RouterEntry is one router or liquidity pool in the routers file.
type RouterEntry struct {
	Address string `yaml:"address"`
	Label   string `yaml:"label"`
}

// RoutersFile is the YAML document listing market addresses.
type RoutersFile struct {
	Routers []RouterEntry `yaml:"routers"`
}

// loadRouters reads addresses from path. A missing file is an error only
// when the path was set explicitly.
func loadRouters(path string, explicit bool) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return nil, nil
		}
		return nil, fmt.Errorf("read routers file: %w", err)
	}

	var doc RoutersFile
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse routers file %s: %w", path, err)
	}

	addrs := make([]string, 0, len(doc.Routers))
	for i, r := range doc.Routers {
		if r.Address == "" {
			return nil, fmt.Errorf("routers file %s: entry %d has no address", path, i)
		}
		addrs = append(addrs, r.Address)
	}
	return addrs, nil
}
