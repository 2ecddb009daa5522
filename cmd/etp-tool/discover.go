// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/openetp/etp-go/pkg/protocol/discovery"
)

const requestTimeout = time.Minute

// parseDiscoverArgs of "discover websocket uri [scope [depth]]".
func parseDiscoverArgs(args []string) (url string, query *discovery.GetResources, err error) {
	if len(args) < 2 || len(args) > 4 {
		err = fmt.Errorf("expected two to four arguments, got %d", len(args))
		return
	}

	url = args[0]
	query = &discovery.GetResources{
		Context:      discovery.ContextInfo{URI: args[1], Depth: 1},
		Scope:        discovery.ScopeTargets,
		CountObjects: true,
		IncludeEdges: true,
	}

	if len(args) > 2 {
		query.Scope = discovery.Scope(args[2])
		if !query.Scope.Valid() {
			err = fmt.Errorf("unknown scope %q", args[2])
			return
		}
	}
	if len(args) > 3 {
		depth, depthErr := strconv.ParseInt(args[3], 10, 32)
		if depthErr != nil {
			err = depthErr
			return
		}
		query.Context.Depth = int32(depth)
	}
	return
}

func optCount(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

// discover for the "discover" CLI option.
func discover(args []string) {
	url, query, err := parseDiscoverArgs(args)
	if err != nil {
		printUsage()
	}

	s := dial(url, discovery.DeclareCustomer)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	resources, edges, err := discovery.NewCustomer(s).GetResources(ctx, query)
	if err != nil {
		printFatal(err, "GetResources errored")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "URI\tNAME\tSOURCES\tTARGETS\tLAST CHANGED")
	for _, r := range resources {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.URI, r.Name, optCount(r.SourceCount), optCount(r.TargetCount),
			time.UnixMicro(r.LastChanged).Format(time.RFC3339))
	}
	_ = tw.Flush()

	if len(edges) > 0 {
		fmt.Println()
		for _, e := range edges {
			fmt.Printf("%s -> %s (%s)\n", e.SourceURI, e.TargetURI, e.RelationshipKind)
		}
	}
}

// deleted for the "deleted" CLI option.
func deleted(args []string) {
	if len(args) != 2 {
		printUsage()
	}

	s := dial(args[0], discovery.DeclareCustomer)
	defer func() { _ = s.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	tombstones, err := discovery.NewCustomer(s).GetDeletedResources(ctx, &discovery.GetDeletedResources{
		DataspaceURI: args[1],
	})
	if err != nil {
		printFatal(err, "GetDeletedResources errored")
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "URI\tTYPE\tDELETED")
	for _, d := range tombstones {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", d.URI, d.DataObjectType, time.UnixMicro(d.DeletedTime).Format(time.RFC3339))
	}
	_ = tw.Flush()
}
