// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"testing"

	"github.com/openetp/etp-go/pkg/datatypes"
	"github.com/openetp/etp-go/pkg/protocol/discovery"
)

func TestParseDiscoverArgs(t *testing.T) {
	tests := []struct {
		args  []string
		scope discovery.Scope
		depth int32
		valid bool
	}{
		{[]string{"ws://localhost/etp", "eml:///"}, discovery.ScopeTargets, 1, true},
		{[]string{"ws://localhost/etp", "eml:///", "sourcesOrSelf"}, discovery.ScopeSourcesOrSelf, 1, true},
		{[]string{"ws://localhost/etp", "eml:///", "targets", "3"}, discovery.ScopeTargets, 3, true},
		{[]string{"ws://localhost/etp", "eml:///", "sideways"}, "", 0, false},
		{[]string{"ws://localhost/etp", "eml:///", "targets", "deep"}, "", 0, false},
		{[]string{"ws://localhost/etp"}, "", 0, false},
	}

	for _, test := range tests {
		_, query, err := parseDiscoverArgs(test.args)
		if valid := err == nil; valid != test.valid {
			t.Fatalf("%v: expected valid %t, got %v", test.args, test.valid, err)
		}
		if err != nil {
			continue
		}
		if query.Scope != test.scope || query.Context.Depth != test.depth {
			t.Fatalf("%v: unexpected query %v", test.args, query)
		}
	}
}

func TestParseChannel(t *testing.T) {
	info, err := parseChannel("23")
	if err != nil {
		t.Fatal(err)
	} else if info.ChannelID != 23 || !info.StartIndex.Item.IsAbsent() {
		t.Fatalf("unexpected info %v", info)
	}

	info, err = parseChannel("23@42")
	if err != nil {
		t.Fatal(err)
	} else if info.ChannelID != 23 || info.StartIndex.Item != datatypes.Int64Index(42) {
		t.Fatalf("unexpected info %v", info)
	}

	if _, err := parseChannel("x@1"); err == nil {
		t.Fatal("invalid channel id was parsed")
	}
	if _, err := parseChannel("1@x"); err == nil {
		t.Fatal("invalid start index was parsed")
	}
}
