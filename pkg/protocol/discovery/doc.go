// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery implements the Discovery protocol on top of a session.Session.
//
// A Store answers GetResources with a multi-part response of GetResourcesResponse messages, optionally followed by
// GetResourcesEdgesResponse messages, and GetDeletedResources with GetDeletedResourcesResponse messages. The data
// itself is provided by a Source. A Customer sends those queries and collects all response parts.
package discovery
