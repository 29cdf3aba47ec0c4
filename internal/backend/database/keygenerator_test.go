package database

import (
	"context"
	"regexp"
	"testing"

	"github.com/jo-hoe/promptrank/internal/entry"
)

var uuidV4Pattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)

func TestStore_CreateEntryAssignsIDs(t *testing.T) {
	backends(t, func(t *testing.T, ds DatabaseService) {
		const n = 64
		seen := make(map[string]bool, n)

		for i := 0; i < n; i++ {
			created, err := ds.CreateEntry(context.Background(), entry.Entry{PromptText: "anonymous"})
			if err != nil {
				t.Fatalf("CreateEntry() without id failed: %v", err)
			}
			if !uuidV4Pattern.MatchString(created.ID) {
				t.Fatalf("CreateEntry() assigned a non UUID v4 id: %q", created.ID)
			}
			if seen[created.ID] {
				t.Fatalf("CreateEntry() assigned a duplicate id: %q", created.ID)
			}
			seen[created.ID] = true
		}

		entries, err := ds.GetEntries(context.Background())
		if err != nil {
			t.Fatalf("GetEntries() failed: %v", err)
		}
		if len(entries) != n {
			t.Errorf("expected %d stored entries, got %d", n, len(entries))
		}
	})
}

func TestCreateEntry_KeepsGivenID(t *testing.T) {
	backends(t, func(t *testing.T, ds DatabaseService) {
		created, err := ds.CreateEntry(context.Background(), entry.Entry{ID: "chosen"})
		if err != nil {
			t.Fatalf("CreateEntry() failed: %v", err)
		}
		if created.ID != "chosen" {
			t.Errorf("expected id 'chosen', got %q", created.ID)
		}
	})
}
