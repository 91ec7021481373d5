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
	"errors"
	"io"
)

// duplexConn is the slice of *net.TCPConn behavior that a relay needs:
// byte copies in each direction and a write-side shutdown so that
// half-closed peers drain correctly.
type duplexConn interface {
	io.ReadWriter
	CloseWrite() error
}

// relay copies bytes between the accepted client connection and the
// upstream connection until both directions have finished. Each
// direction propagates EOF to the other side with a write shutdown, so
// half-close semantics survive the hop. The relay is byte-transparent;
// there is no framing or inspection.
//
// If either copy fails, the other is still drained before the error is
// returned to the caller.
func relay(client, upstream duplexConn) error {
	results := make(chan error, 2)

	pump := func(dst, src duplexConn, direction string) {
		n, err := io.Copy(dst, src)
		if closeErr := dst.CloseWrite(); err == nil {
			err = closeErr
		}
		relayBytes.WithLabelValues(direction).Add(float64(n))
		results <- err
	}

	go pump(upstream, client, "inbound")
	go pump(client, upstream, "outbound")

	return errors.Join(<-results, <-results)
}
