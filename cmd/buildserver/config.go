package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/nixpig/buildworker/internal/logging"
)

type serverConfig struct {
	host     string
	port     uint16
	httpPort uint16

	presetsPath string

	serverCertPath string
	serverKeyPath  string
	caCertPath     string

	log logging.Options
}

func (c *serverConfig) validate() error {
	if c.port == 0 {
		return errors.New("port must be in valid range")
	}

	if c.httpPort != 0 && c.httpPort == c.port {
		return errors.New("http-port cannot be the same as port")
	}

	files := []struct {
		flag string
		path string
	}{
		{"presets", c.presetsPath},
		{"server-cert", c.serverCertPath},
		{"server-key", c.serverKeyPath},
		{"ca-cert", c.caCertPath},
	}

	for _, f := range files {
		if f.path == "" {
			return fmt.Errorf("%s cannot be empty", f.flag)
		}

		if _, err := os.Stat(f.path); err != nil {
			return fmt.Errorf("failed to stat %s: %w", f.flag, err)
		}
	}

	return nil
}
