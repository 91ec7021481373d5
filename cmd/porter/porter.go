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

package porter

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"vawter.tech/porter/config"
	"vawter.tech/porter/core"
	"vawter.tech/porter/proxy"
	"vawter.tech/porter/store"
	"vawter.tech/porter/web"
	"vawter.tech/stopper"
)

// Command is the entrypoint for starting the porter daemon.
func Command() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Args:  cobra.NoArgs,
		Use:   "start",
		Short: "Start the porter daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgPath == "" {
				return errors.New("no config file specified")
			}
			ctx := stopper.From(cmd.Context())

			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}

			st, err := store.Open(ctx, cfg.Database)
			if err != nil {
				return err
			}
			ctx.Go(func(ctx *stopper.Context) error {
				<-ctx.Stopping()
				return st.Close()
			})

			proxies := proxy.NewManager(ctx)
			porter, err := core.New(ctx, st, proxies)
			if err != nil {
				return err
			}

			for _, g := range cfg.Gates {
				if err := proxies.CreateProxy(ctx, g.Host, g.Port, g.Remote); err != nil {
					slog.ErrorContext(ctx, "could not open configured gate",
						slog.Int("port", g.Port),
						slog.String("remote", g.Remote),
						slog.Any("error", err))
				}
			}

			srv := &http.Server{
				Addr:    cfg.APIAddr,
				Handler: web.New(porter).Handler(),
			}
			ctx.Go(func(ctx *stopper.Context) error {
				slog.InfoContext(ctx, "API listening", slog.String("address", cfg.APIAddr))
				if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			ctx.Go(func(ctx *stopper.Context) error {
				<-ctx.Stopping()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			return ctx.Wait()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "configuration file")
	return cmd
}
