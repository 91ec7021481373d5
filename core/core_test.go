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

package core

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"vawter.tech/porter/echo"
	"vawter.tech/porter/internal/portertest"
	"vawter.tech/porter/proxy"
	"vawter.tech/porter/store"
	"vawter.tech/stopper"
)

func rigForTest(t *testing.T, ctx *stopper.Context) (*store.Store, *Porter) {
	t.Helper()
	r := require.New(t)

	st, err := store.Open(ctx, ":memory:")
	r.NoError(err)
	t.Cleanup(func() { _ = st.Close() })

	p, err := New(ctx, st, proxy.NewManager(ctx))
	r.NoError(err)
	return st, p
}

func TestGateWiring(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)
	_, p := rigForTest(t, ctx)

	upstream, err := echo.New(ctx, "127.0.0.1:0")
	r.NoError(err)
	upstreamPort := upstream.Addr().(*net.TCPAddr).Port

	svc, err := p.CreateService(ctx, "127.0.0.1", upstreamPort)
	r.NoError(err)

	g, err := p.CreateGate(ctx, svc.ID, "127.0.0.1", 18190)
	r.NoError(err)
	r.True(g.Ready)

	// The gate accepts connections on its port.
	conn, err := net.DialTimeout("tcp", "127.0.0.1:18190", time.Second)
	r.NoError(err)
	r.NoError(conn.Close())

	gates, err := p.Gates(ctx)
	r.NoError(err)
	r.Len(gates, 1)
	r.True(gates[0].Ready)

	r.NoError(p.DeleteGate(ctx, g.ID))
	gates, err = p.Gates(ctx)
	r.NoError(err)
	r.Empty(gates)

	// Deleting the gate released its port.
	l, err := net.Listen("tcp", "127.0.0.1:18190")
	r.NoError(err)
	r.NoError(l.Close())
}

func TestCreateGateRollsBack(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)
	_, p := rigForTest(t, ctx)

	held, err := net.Listen("tcp", "127.0.0.1:18191")
	r.NoError(err)
	defer func() { _ = held.Close() }()

	svc, err := p.CreateService(ctx, "example.invalid", 80)
	r.NoError(err)

	// A gate whose port cannot be bound leaves no record behind.
	_, err = p.CreateGate(ctx, svc.ID, "127.0.0.1", 18191)
	r.Error(err)
	gates, err := p.Gates(ctx)
	r.NoError(err)
	r.Empty(gates)
}

func TestUpdateGateMovesPort(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)
	_, p := rigForTest(t, ctx)

	svc, err := p.CreateService(ctx, "example.invalid", 80)
	r.NoError(err)
	g, err := p.CreateGate(ctx, svc.ID, "127.0.0.1", 18192)
	r.NoError(err)

	port := 18193
	moved, err := p.UpdateGate(ctx, g.ID, nil, nil, &port)
	r.NoError(err)
	r.Equal(18193, moved.Port)
	r.True(moved.Ready)

	// The old port is released, the new one bound.
	l, err := net.Listen("tcp", "127.0.0.1:18192")
	r.NoError(err)
	r.NoError(l.Close())
	got, err := p.Gate(ctx, g.ID)
	r.NoError(err)
	r.True(got.Ready)
}

func TestDeleteServiceGuard(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)
	_, p := rigForTest(t, ctx)

	svc, err := p.CreateService(ctx, "example.invalid", 80)
	r.NoError(err)
	g, err := p.CreateGate(ctx, svc.ID, "127.0.0.1", 18194)
	r.NoError(err)

	// A service with live gates cannot be removed.
	r.Error(p.DeleteService(ctx, svc.ID))

	r.NoError(p.DeleteGate(ctx, g.ID))
	r.NoError(p.DeleteService(ctx, svc.ID))
}

func TestStartupRebuild(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)

	st, err := store.Open(ctx, ":memory:")
	r.NoError(err)
	t.Cleanup(func() { _ = st.Close() })

	// Seed records as a previous process would have left them.
	svc, err := st.CreateService(ctx, "example.invalid", 80)
	r.NoError(err)
	_, err = st.CreateGate(ctx, svc.ID, "127.0.0.1", 18195)
	r.NoError(err)

	p, err := New(ctx, st, proxy.NewManager(ctx))
	r.NoError(err)

	gates, err := p.Gates(ctx)
	r.NoError(err)
	r.Len(gates, 1)
	r.True(gates[0].Ready)
}
