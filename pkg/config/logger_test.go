// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerConfigSetDefaults(t *testing.T) {
	var c LoggerConfig
	c.SetDefaults()
	assert.Equal(t, "info", c.Level)
	assert.Equal(t, "simple", c.Format)
	assert.Empty(t, c.File)
}

func TestLoggerConfigValidateRejectsUnknownLevel(t *testing.T) {
	c := LoggerConfig{Level: "verbose"}
	assert.Error(t, c.Validate())
}

func TestLoggerConfigValidateAcceptsKnownLevels(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "warning", "error"} {
		c := LoggerConfig{Level: level}
		assert.NoError(t, c.Validate())
	}
}

func TestBuildLoggerDefaultsToStderrJSON(t *testing.T) {
	c := LoggerConfig{Level: "info", Format: "simple"}
	logger, err := c.BuildLogger()
	require.NoError(t, err)
	assert.NotNil(t, logger)
}

func TestBuildLoggerWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ragforge.log")
	c := LoggerConfig{Level: "debug", Format: "verbose", File: path}
	logger, err := c.BuildLogger()
	require.NoError(t, err)

	logger.Info("hello")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello")
}
