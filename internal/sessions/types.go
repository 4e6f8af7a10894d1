package sessions

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/haasonsaas/axon/pkg/models"
)

// sessionIDRe constrains session identifiers to filesystem-safe characters.
var sessionIDRe = regexp.MustCompile(`^[A-Za-z0-9_.:-]+$`)

// ValidSessionID reports whether id is a well-formed session identifier.
func ValidSessionID(id string) bool {
	return sessionIDRe.MatchString(id)
}

// SessionKey builds the canonical session identifier from its routing parts.
// Empty parts are dropped so CLI sessions can use a bare name.
func SessionKey(channel, chatID, senderID string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{channel, chatID, senderID} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "_")
}

// DeriveSessionType classifies a session from its channel and chat hints.
// Operator-facing surfaces map to MAIN; shared chats map to GROUP or TOPIC;
// everything else is treated as a direct message.
func DeriveSessionType(channel, chatID string) models.SessionType {
	switch strings.ToLower(channel) {
	case "cli", "local", "api", "main":
		return models.SessionMain
	}
	lowered := strings.ToLower(chatID)
	if strings.Contains(lowered, "topic") {
		return models.SessionTopic
	}
	if strings.Contains(lowered, "group") {
		return models.SessionGroup
	}
	return models.SessionDM
}

// ErrInvalidSessionID is returned for identifiers that would not survive
// use as a transcript filename.
var ErrInvalidSessionID = fmt.Errorf("invalid session id")
