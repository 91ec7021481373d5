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

// Package list contains a command that queries a running daemon for its
// gates and writes them as a CSV file.
package list

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

// Command is an entrypoint to list the gates of a running daemon as a
// CSV file.
func Command() *cobra.Command {
	l := &lister{}
	cmd := &cobra.Command{
		Args:  cobra.NoArgs,
		Use:   "list",
		Short: "List the gates of a running daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return l.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&l.api, "api", "http://127.0.0.1:8080", "The base URL of the daemon's API")
	cmd.Flags().StringVarP(&l.path, "out", "o", "", "The path to write the results to; defaults to stdout if unset")
	return cmd
}

type lister struct {
	api, path string
}

type gateRow struct {
	ID        int64  `json:"id"`
	ServiceID int64  `json:"service_id"`
	Host      string `json:"host"`
	Port      int    `json:"port"`
	Ready     bool   `json:"ready"`
}

func (l *lister) Run(ctx context.Context) error {
	if l.api == "" {
		return errors.New("no API address specified")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.api+"/api/gates", nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected response %s from %s", resp.Status, l.api)
	}

	var gates []gateRow
	if err := json.NewDecoder(resp.Body).Decode(&gates); err != nil {
		return err
	}

	var out io.Writer = os.Stdout
	if l.path != "" {
		f, err := os.Create(l.path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	w := csv.NewWriter(out)
	if err := w.Write([]string{"id", "service_id", "host", "port", "ready"}); err != nil {
		return err
	}
	for _, g := range gates {
		record := []string{
			strconv.FormatInt(g.ID, 10),
			strconv.FormatInt(g.ServiceID, 10),
			g.Host,
			strconv.Itoa(g.Port),
			strconv.FormatBool(g.Ready),
		}
		if err := w.Write(record); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}
