package notifications

import (
	"log/slog"
	"testing"
)

func testParser(requireNameMatch bool) *Parser {
	return NewParser(requireNameMatch, slog.New(slog.DiscardHandler))
}

const samplePayload = `{
	"globalObjects": {
		"users": {
			"100": {"id": 100, "id_str": "100", "name": "Alice Example", "screen_name": "alice"},
			"200": {"id": 200, "id_str": "200", "name": "Bob Example", "screen_name": "bob"},
			"300": {"id": 300, "id_str": "300", "name": "Carol Example", "screen_name": "carol"}
		},
		"tweets": {
			"9001": {"id_str": "9001", "full_text": "hello"}
		},
		"notifications": {
			"n1": {
				"id": "n1",
				"message": {"text": "New post notifications for Alice Example and Bob Example"},
				"template": {"aggregateUserActionsV1": {"fromUsers": [
					{"user": {"id": "100"}},
					{"user": {"id": "200"}},
					{"user": {"id": "100"}}
				]}}
			},
			"n2": {
				"id": "n2",
				"message": {"text": "Someone liked your post"},
				"template": {"aggregateUserActionsV1": {"fromUsers": [
					{"user": {"id": "300"}}
				]}}
			}
		}
	}
}`

func TestParseExtractsNewPostUsers(t *testing.T) {
	result, err := testParser(false).Parse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	if len(result.Users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(result.Users))
	}

	seen := map[string]bool{}
	for _, u := range result.Users {
		seen[u.IDStr] = true
	}
	if !seen["100"] || !seen["200"] {
		t.Errorf("expected users 100 and 200, got %v", result.Users)
	}
	if seen["300"] {
		t.Error("user from non-matching notification should be excluded")
	}

	if len(result.Tweets) != 1 {
		t.Errorf("expected raw tweets collection to carry 1 entry, got %d", len(result.Tweets))
	}
}

func TestParseDeduplicatesRepeatedActors(t *testing.T) {
	result, err := testParser(false).Parse([]byte(samplePayload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	counts := map[string]int{}
	for _, u := range result.Users {
		counts[u.IDStr]++
	}
	for id, n := range counts {
		if n != 1 {
			t.Errorf("user %s appeared %d times, want 1", id, n)
		}
	}
}

func TestParseRequireNameMatch(t *testing.T) {
	payload := `{
		"globalObjects": {
			"users": {
				"100": {"id": 100, "id_str": "100", "name": "Alice Example", "screen_name": "alice"},
				"200": {"id": 200, "id_str": "200", "name": "Bob Example", "screen_name": "bob"}
			},
			"notifications": {
				"n1": {
					"id": "n1",
					"message": {"text": "New post notifications for Alice Example"},
					"template": {"aggregateUserActionsV1": {"fromUsers": [
						{"user": {"id": "100"}},
						{"user": {"id": "200"}}
					]}}
				}
			}
		}
	}`

	relaxed, err := testParser(false).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(relaxed.Users) != 2 {
		t.Errorf("relaxed mode: expected 2 users, got %d", len(relaxed.Users))
	}

	strict, err := testParser(true).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(strict.Users) != 1 {
		t.Fatalf("strict mode: expected 1 user, got %d", len(strict.Users))
	}
	if strict.Users[0].IDStr != "100" {
		t.Errorf("strict mode: expected user 100, got %s", strict.Users[0].IDStr)
	}
}

func TestParseRejectsInvalidJSON(t *testing.T) {
	if _, err := testParser(false).Parse([]byte("{not json")); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestParseToleratesMissingContainer(t *testing.T) {
	for _, payload := range []string{
		`{}`,
		`{"globalObjects": null}`,
		`{"globalObjects": {}}`,
	} {
		result, err := testParser(false).Parse([]byte(payload))
		if err != nil {
			t.Fatalf("Parse(%s) returned error: %v", payload, err)
		}
		if len(result.Users) != 0 {
			t.Errorf("Parse(%s): expected no users, got %d", payload, len(result.Users))
		}
	}
}

func TestParseToleratesNonMappingCollections(t *testing.T) {
	payload := `{
		"globalObjects": {
			"users": [1, 2, 3],
			"tweets": "nope",
			"notifications": {
				"n1": {
					"id": "n1",
					"message": {"text": "New post notifications for Alice"},
					"template": {"aggregateUserActionsV1": {"fromUsers": [{"user": {"id": "100"}}]}}
				}
			}
		}
	}`

	result, err := testParser(false).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}

	// Notification references user 100 but the users collection was unusable.
	if len(result.Users) != 0 {
		t.Errorf("expected no users resolved, got %d", len(result.Users))
	}
	if len(result.Notifications) != 1 {
		t.Errorf("expected notification entries preserved, got %d", len(result.Notifications))
	}
}

func TestParseSkipsEntriesWithoutTemplate(t *testing.T) {
	payload := `{
		"globalObjects": {
			"users": {"100": {"id": 100, "id_str": "100", "name": "Alice", "screen_name": "alice"}},
			"notifications": {
				"n1": {"id": "n1", "message": {"text": "New post notifications for Alice"}}
			}
		}
	}`

	result, err := testParser(false).Parse([]byte(payload))
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(result.Users) != 0 {
		t.Errorf("expected no users without an actor template, got %d", len(result.Users))
	}
}
