// SPDX-FileCopyrightText: 2023 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package multipart

import (
	"errors"
	"fmt"
	"reflect"
	"testing"

	"github.com/openetp/etp-go/pkg/msgs"
	"github.com/openetp/etp-go/pkg/protoerr"
)

func itemSize(s string) int {
	return len(s)
}

func TestSplitReassemble(t *testing.T) {
	for n := 0; n <= 12; n++ {
		for budget := 3; budget <= 20; budget += 4 {
			t.Run(fmt.Sprintf("n=%d budget=%d", n, budget), func(t *testing.T) {
				items := make([]string, n)
				for i := range items {
					items[i] = fmt.Sprintf("%03d", i)[:1+i%3]
				}

				chunks, err := Split(items, budget, itemSize)
				if err != nil {
					t.Fatal(err)
				}
				if len(chunks) == 0 {
					t.Fatal("split returned no parts")
				}

				finals := 0
				var joined []string
				for i, chunk := range chunks {
					size := 0
					for _, item := range chunk {
						size += len(item)
					}
					if size > budget {
						t.Fatalf("chunk %d has %d bytes, budget is %d", i, size, budget)
					}

					flags := PartFlags(i, len(chunks))
					if flags.Has(msgs.FlagFinalPart) {
						finals++
						if i != len(chunks)-1 {
							t.Fatalf("part %d of %d is final", i, len(chunks))
						}
					}
					joined = append(joined, chunk...)
				}

				if finals != 1 {
					t.Fatalf("%d final parts", finals)
				}
				if n == 0 && (len(chunks) != 1 || len(chunks[0]) != 0) {
					t.Fatalf("empty input resulted in %v", chunks)
				}
				if n > 0 && !reflect.DeepEqual(joined, items) {
					t.Fatalf("expected %v, got %v", items, joined)
				}
			})
		}
	}
}

func TestSplitOversized(t *testing.T) {
	_, err := Split([]string{"a", "toolong"}, 4, itemSize)
	if !errors.Is(err, protoerr.ErrCapabilityLimit) {
		t.Fatalf("expected capability limit error, got %v", err)
	}

	if _, err := Split([]string{"a"}, 0, itemSize); !errors.Is(err, protoerr.ErrCapabilityLimit) {
		t.Fatalf("expected capability limit error, got %v", err)
	}
}

func TestPartFlags(t *testing.T) {
	if f := PartFlags(0, 1); f != msgs.FlagFinalPart {
		t.Fatalf("single part has flags %v", f)
	}
	if f := PartFlags(0, 2); f != msgs.FlagMultiPart {
		t.Fatalf("first of two parts has flags %v", f)
	}
	if f := PartFlags(1, 2); f != msgs.FlagMultiPart|msgs.FlagFinalPart {
		t.Fatalf("last of two parts has flags %v", f)
	}
}
