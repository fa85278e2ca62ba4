/*
Package config loads callbus settings from YAML, JSON, or TOML files.

# Overview

Config wraps a map[string]any and provides typed accessor methods that handle
missing keys and type mismatches gracefully by returning default values.
Settings is the typed view the bus and the CLI consume.

# Basic Usage

	settings, err := config.Load("callbus.yaml")
	if err != nil {
	    log.Fatal(err)
	}
	bus := callbus.New(callbus.WithSettings(settings))

A file looks like:

	workers: 8
	queue_size: 4096
	store:
	  driver: sqlite
	  path: ./callbus.db
	recorder:
	  buffer: 2048
	metrics:
	  enabled: true

# Thread Safety

Config is safe for concurrent read access. The underlying map is not
modified after creation.
*/
package config
