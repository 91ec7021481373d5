// Copyright (c) 2025 Bob Vawter (bob@vawter.org)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// SPDX-License-Identifier: MIT

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func write(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "porter.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	r := require.New(t)

	cfg, err := Load(write(t, `
api_addr: 127.0.0.1:9090
database: porter.db
gates:
  - port: 15432
    remote: db.internal:5432
  - host: 0.0.0.0
    port: 15433
    remote: cache.internal:6379
`))
	r.NoError(err)
	r.Equal("127.0.0.1:9090", cfg.APIAddr)
	r.Equal("porter.db", cfg.Database)
	r.Len(cfg.Gates, 2)
	// The bind host defaults to loopback.
	r.Equal("127.0.0.1", cfg.Gates[0].Host)
	r.Equal("0.0.0.0", cfg.Gates[1].Host)
}

func TestLoadDefaults(t *testing.T) {
	r := require.New(t)
	cfg, err := Load(write(t, `database: porter.db`))
	r.NoError(err)
	r.Equal("127.0.0.1:8080", cfg.APIAddr)
	r.Empty(cfg.Gates)
}

func TestLoadRejects(t *testing.T) {
	r := require.New(t)

	_, err := Load(write(t, `api_addr: 127.0.0.1:9090`))
	r.Error(err) // no database

	_, err = Load(write(t, `
database: porter.db
gates:
  - port: 70000
    remote: db.internal:5432
`))
	r.Error(err) // port out of range

	_, err = Load(write(t, `
database: porter.db
gates:
  - port: 15432
`))
	r.Error(err) // no remote

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	r.Error(err)
}
