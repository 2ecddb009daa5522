// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"sort"
	"strings"

	"github.com/openetp/etp-go/pkg/datatypes"
)

const (
	uriRoot      = "eml:///"
	uriDataspace = "eml:///dataspace("
)

// IsDataspace checks if an URI addresses a dataspace instead of a resource, e.g., "eml:///" for the default
// dataspace or "eml:///dataspace('demo')".
func IsDataspace(uri string) bool {
	if uri == uriRoot {
		return true
	}
	return strings.HasPrefix(uri, uriDataspace) && strings.HasSuffix(uri, ")") && !strings.Contains(uri[len(uriRoot):], "/")
}

// DataspaceOf a resource URI.
func DataspaceOf(uri string) string {
	if !strings.HasPrefix(uri, uriDataspace) {
		return uriRoot
	}

	if end := strings.Index(uri, ")"); end >= 0 {
		return uri[:end+1]
	}
	return uriRoot
}

// DataObjectType extracts the qualified type of a resource URI, e.g., "witsml20.Well" for
// "eml:///witsml20.Well(2b5d...)".
func DataObjectType(uri string) string {
	segment := uri
	if i := strings.LastIndex(uri, "/"); i >= 0 {
		segment = uri[i+1:]
	}
	if i := strings.Index(segment, "("); i >= 0 {
		segment = segment[:i]
	}
	return segment
}

// matchesType checks a data object type against a filter, an empty filter matches everything. Filters ending with
// a "*" match a prefix, e.g., "witsml20.*".
func matchesType(dataObjectType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if f == dataObjectType {
			return true
		}
		if strings.HasSuffix(f, "*") && strings.HasPrefix(dataObjectType, strings.TrimSuffix(f, "*")) {
			return true
		}
	}
	return false
}

func sortEdges(edges []datatypes.Edge) {
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].SourceURI != edges[j].SourceURI {
			return edges[i].SourceURI < edges[j].SourceURI
		}
		return edges[i].TargetURI < edges[j].TargetURI
	})
}
