// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package multipart splits outgoing item lists into size bounded parts and reassembles incoming parts.
//
// Split and PartFlags are used for the disassembly of a response. The Assembler keeps one ordered buffer for each
// open exchange, keyed by the correlation id, and hands out the whole sequence as soon as the final part arrived.
// Exchanges without a final part are abandoned after a timeout, their parts are never delivered.
package multipart
