package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigure(t *testing.T) {
	path := writeConfig(t, "addr = \":5000\"\nmetrics_addr = \":9000\"\n")
	var tests = []struct {
		path, addr, metrics string
		expAddr, expMetrics string
	}{
		{"", "", "", ":4001", ""},
		{"", ":23", ":9100", ":23", ":9100"},
		{path, "", "", ":5000", ":9000"},
		{path, ":23", "", ":23", ":9000"},
		{path, "", ":9100", ":5000", ":9100"},
	}
	for _, test := range tests {
		cfg, err := configure(test.path, test.addr, test.metrics)
		require.NoError(t, err)
		require.Equal(t, test.expAddr, cfg.Addr, "%+v", test)
		require.Equal(t, test.expMetrics, cfg.MetricsAddr, "%+v", test)
	}
}

func TestConfigureErrors(t *testing.T) {
	for _, path := range []string{
		filepath.Join(t.TempDir(), "missing.toml"),
		writeConfig(t, "addr = "),
	} {
		_, err := configure(path, ":23", "")
		require.Error(t, err, path)
	}
}
