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

package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func openForTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestServiceLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := openForTest(t)

	svc, err := s.CreateService(ctx, "db.internal", 5432)
	r.NoError(err)
	r.NotZero(svc.ID)
	r.Equal("db.internal:5432", svc.Addr())
	r.False(svc.CreatedAt.IsZero())
	r.Nil(svc.UpdatedAt)

	got, err := s.Service(ctx, svc.ID)
	r.NoError(err)
	r.Equal(svc.Host, got.Host)
	r.Equal(svc.Port, got.Port)

	all, err := s.Services(ctx)
	r.NoError(err)
	r.Len(all, 1)

	// Partial update: only the port changes.
	port := 5433
	updated, err := s.UpdateService(ctx, svc.ID, nil, &port)
	r.NoError(err)
	r.Equal("db.internal", updated.Host)
	r.Equal(5433, updated.Port)
	r.NotNil(updated.UpdatedAt)

	r.NoError(s.DeleteService(ctx, svc.ID))

	// A soft-deleted row is gone from every read.
	_, err = s.Service(ctx, svc.ID)
	r.ErrorIs(err, ErrNotFound)
	all, err = s.Services(ctx)
	r.NoError(err)
	r.Empty(all)

	// And from every write.
	r.ErrorIs(s.DeleteService(ctx, svc.ID), ErrNotFound)
	_, err = s.UpdateService(ctx, svc.ID, nil, &port)
	r.ErrorIs(err, ErrNotFound)
}

func TestGateLifecycle(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := openForTest(t)

	svc, err := s.CreateService(ctx, "db.internal", 5432)
	r.NoError(err)

	g, err := s.CreateGate(ctx, svc.ID, "127.0.0.1", 15432)
	r.NoError(err)
	r.Equal(svc.ID, g.ServiceID)

	// Gates require a live service.
	_, err = s.CreateGate(ctx, svc.ID+100, "127.0.0.1", 15433)
	r.ErrorIs(err, ErrNotFound)

	byService, err := s.GatesForService(ctx, svc.ID)
	r.NoError(err)
	r.Len(byService, 1)

	host := "0.0.0.0"
	updated, err := s.UpdateGate(ctx, g.ID, nil, &host, nil)
	r.NoError(err)
	r.Equal("0.0.0.0", updated.Host)
	r.Equal(15432, updated.Port)

	r.NoError(s.DeleteGate(ctx, g.ID))
	_, err = s.Gate(ctx, g.ID)
	r.ErrorIs(err, ErrNotFound)
	byService, err = s.GatesForService(ctx, svc.ID)
	r.NoError(err)
	r.Empty(byService)
}

func TestBindings(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := openForTest(t)

	svc, err := s.CreateService(ctx, "db.internal", 5432)
	r.NoError(err)
	g1, err := s.CreateGate(ctx, svc.ID, "127.0.0.1", 15432)
	r.NoError(err)
	g2, err := s.CreateGate(ctx, svc.ID, "127.0.0.1", 15433)
	r.NoError(err)

	bindings, err := s.Bindings(ctx)
	r.NoError(err)
	r.Len(bindings, 2)
	r.Equal(g1.ID, bindings[0].Gate.ID)
	r.Equal(g2.ID, bindings[1].Gate.ID)
	for _, b := range bindings {
		r.Equal("db.internal:5432", b.RemoteAddr)
	}

	// Deleted gates fall out of the join.
	r.NoError(s.DeleteGate(ctx, g1.ID))
	bindings, err = s.Bindings(ctx)
	r.NoError(err)
	r.Len(bindings, 1)
	r.Equal(g2.ID, bindings[0].Gate.ID)
}

func TestPortBounds(t *testing.T) {
	r := require.New(t)
	ctx := context.Background()
	s := openForTest(t)

	_, err := s.CreateService(ctx, "db.internal", 0)
	r.Error(err)
	_, err = s.CreateService(ctx, "db.internal", 65536)
	r.Error(err)

	svc, err := s.CreateService(ctx, "db.internal", 5432)
	r.NoError(err)
	bad := 70000
	_, err = s.UpdateService(ctx, svc.ID, nil, &bad)
	r.Error(err)
	_, err = s.CreateGate(ctx, svc.ID, "127.0.0.1", -1)
	r.Error(err)
}
