// Copyright 2026 The Tessera Authors
// SPDX-License-Identifier: Apache-2.0

package service

import "testing"

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		raw  string
		want Endpoint
	}{
		{raw: "tcp://127.0.0.1:7300", want: Endpoint{Network: "tcp", Address: "127.0.0.1:7300"}},
		{raw: "127.0.0.1:7300", want: Endpoint{Network: "tcp", Address: "127.0.0.1:7300"}},
		{raw: "unix:///run/tessera/node.sock", want: Endpoint{Network: "unix", Address: "/run/tessera/node.sock"}},
		{raw: "/run/tessera/node.sock", want: Endpoint{Network: "unix", Address: "/run/tessera/node.sock"}},
	}
	for _, test := range tests {
		got, err := ParseEndpoint(test.raw)
		if err != nil {
			t.Errorf("ParseEndpoint(%q): %v", test.raw, err)
			continue
		}
		if got != test.want {
			t.Errorf("ParseEndpoint(%q) = %+v, want %+v", test.raw, got, test.want)
		}
		if reparsed, err := ParseEndpoint(got.String()); err != nil || reparsed != got {
			t.Errorf("ParseEndpoint(%q.String()) = %+v, %v", test.raw, reparsed, err)
		}
	}

	for _, bad := range []string{"", "unix://", "tcp://nohost", "relative/path.sock", "http://x:1"} {
		if _, err := ParseEndpoint(bad); err == nil {
			t.Errorf("ParseEndpoint(%q) succeeded", bad)
		}
	}
}
