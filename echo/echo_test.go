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

package echo

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"vawter.tech/porter/internal/portertest"
)

func TestEcho(t *testing.T) {
	r := require.New(t)
	ctx := portertest.NewStopperForTest(t)

	s, err := New(ctx, "127.0.0.1:0")
	r.NoError(err)

	conn, err := net.DialTimeout("tcp", s.Addr().String(), time.Second)
	r.NoError(err)
	defer func() { _ = conn.Close() }()
	r.NoError(conn.SetDeadline(time.Now().Add(5 * time.Second)))

	_, err = conn.Write([]byte("hello"))
	r.NoError(err)
	r.NoError(conn.(*net.TCPConn).CloseWrite())

	got, err := io.ReadAll(conn)
	r.NoError(err)
	r.Equal("hello", string(got))
}
