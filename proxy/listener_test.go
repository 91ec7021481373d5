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

package proxy

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"vawter.tech/porter/echo"
	"vawter.tech/porter/internal/portertest"
	"vawter.tech/stopper"
)

func TestListenerSignalsExit(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)

	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)

	closed := make(chan int, 2)
	l := &listener{
		port:       4242,
		remoteAddr: "example.invalid:80",
		tcp:        tcp,
		closed:     func(port int) { closed <- port },
	}
	sub := stopper.WithContext(ctx)
	sub.Go(l.run)

	// Breaking the socket ends the accept loop, which signals its exit
	// exactly once.
	r.NoError(tcp.Close())
	select {
	case port := <-closed:
		r.Equal(4242, port)
	case <-time.After(5 * time.Second):
		r.Fail("listener never signaled its exit")
	}

	sub.Stop(time.Second)
	r.NoError(sub.Wait())
	select {
	case <-closed:
		r.Fail("listener signaled more than once")
	default:
	}
}

func TestListenerRelays(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)

	upstream, err := echo.New(ctx, "127.0.0.1:0")
	r.NoError(err)

	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	r.NoError(err)

	l := &listener{
		port:       tcp.Addr().(*net.TCPAddr).Port,
		remoteAddr: upstream.Addr().String(),
		tcp:        tcp,
		closed:     func(int) {},
	}
	sub := stopper.WithContext(ctx)
	sub.Go(l.run)

	conn, err := net.DialTimeout("tcp", tcp.Addr().String(), time.Second)
	r.NoError(err)
	defer func() { _ = conn.Close() }()
	r.NoError(conn.SetDeadline(time.Now().Add(5 * time.Second)))

	_, err = conn.Write([]byte("through the gate"))
	r.NoError(err)
	r.NoError(conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	r.NoError(err)
	r.Equal("through the gate", string(got))
}
