// Package notifications parses the third-party push-notification payload into
// strict internal records. The upstream schema is uncontrolled, so every field
// is treated as optional at this boundary and nothing loosely-typed leaks past
// the parser.
package notifications

import (
	"encoding/json"
	"fmt"
	"strings"

	"log/slog"
)

// newPostMarker selects the notification entries this pipeline cares about.
const newPostMarker = "New post notifications for "

// XUser is an external user record referenced by a notification entry
type XUser struct {
	ID         int64  `json:"id"`
	IDStr      string `json:"id_str"`
	Name       string `json:"name"`
	ScreenName string `json:"screen_name"`
}

// NotificationItem is one entry of the notifications collection
type NotificationItem struct {
	ID          string `json:"id"`
	TimestampMs string `json:"timestampMs"`
	Message     struct {
		Text string `json:"text"`
	} `json:"message"`
	Template *struct {
		AggregateUserActionsV1 *struct {
			FromUsers []struct {
				User struct {
					ID string `json:"id"`
				} `json:"user"`
			} `json:"fromUsers"`
		} `json:"aggregateUserActionsV1"`
	} `json:"template"`
}

// Result is the strict output of one parse: the de-duplicated matched users
// plus the raw tweet and notification collections for downstream debugging.
type Result struct {
	Users         []XUser
	Tweets        map[string]json.RawMessage
	Notifications []NotificationItem
}

// Parser extracts new-post users from raw notification payloads.
type Parser struct {
	// requireNameMatch only accepts users whose display name appears in the
	// notification message text. The upstream feed has shipped both behaviors;
	// the relaxed mode is the default because entries reference users through
	// the aggregated-actor list, which already scopes them to the notification.
	requireNameMatch bool
	logger           *slog.Logger
}

// NewParser constructs a Parser.
func NewParser(requireNameMatch bool, logger *slog.Logger) *Parser {
	return &Parser{requireNameMatch: requireNameMatch, logger: logger}
}

type payloadEnvelope struct {
	GlobalObjects *struct {
		Users         json.RawMessage `json:"users"`
		Tweets        json.RawMessage `json:"tweets"`
		Notifications json.RawMessage `json:"notifications"`
	} `json:"globalObjects"`
}

// Parse extracts the matched users from a raw payload. A payload without the
// globalObjects container, or with non-mapping collections, yields an empty
// Result rather than an error; only structurally invalid JSON fails.
// Individual malformed entries are skipped, never abort the rest.
func (p *Parser) Parse(raw []byte) (*Result, error) {
	var envelope payloadEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode notification payload: %w", err)
	}

	result := &Result{Tweets: map[string]json.RawMessage{}}

	if envelope.GlobalObjects == nil {
		p.logger.Warn("notification payload has no globalObjects container")
		return result, nil
	}

	users := decodeMap[XUser](envelope.GlobalObjects.Users, p.logger, "users")
	notifications := decodeMap[NotificationItem](envelope.GlobalObjects.Notifications, p.logger, "notifications")
	result.Tweets = decodeMap[json.RawMessage](envelope.GlobalObjects.Tweets, p.logger, "tweets")

	seen := map[string]bool{}
	for _, notif := range notifications {
		result.Notifications = append(result.Notifications, notif)

		text := notif.Message.Text
		if !strings.Contains(text, newPostMarker) {
			continue
		}
		if notif.Template == nil || notif.Template.AggregateUserActionsV1 == nil {
			continue
		}

		for _, from := range notif.Template.AggregateUserActionsV1.FromUsers {
			id := from.User.ID
			if id == "" || seen[id] {
				continue
			}

			user, ok := users[id]
			if !ok {
				p.logger.Debug("notification references unknown user", "user_id", id)
				continue
			}
			if p.requireNameMatch && (user.Name == "" || !strings.Contains(text, user.Name)) {
				p.logger.Debug("skipping user not named in notification text",
					"user_id", id,
					"name", user.Name)
				continue
			}

			seen[id] = true
			result.Users = append(result.Users, user)
		}
	}

	return result, nil
}

// decodeMap decodes one globalObjects collection. Non-mapping values (the
// upstream occasionally ships arrays) and undecodable entries are dropped.
func decodeMap[T any](raw json.RawMessage, logger *slog.Logger, field string) map[string]T {
	out := map[string]T{}
	if len(raw) == 0 {
		return out
	}

	var entries map[string]json.RawMessage
	if err := json.Unmarshal(raw, &entries); err != nil {
		logger.Warn("globalObjects collection is not a mapping, ignoring", "field", field)
		return out
	}

	for key, entry := range entries {
		var value T
		if err := json.Unmarshal(entry, &value); err != nil {
			logger.Debug("skipping malformed entry", "field", field, "key", key, "error", err)
			continue
		}
		out[key] = value
	}

	return out
}
