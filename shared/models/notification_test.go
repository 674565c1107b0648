package models

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

func TestNotificationSubject_OneTokenPerUser(t *testing.T) {
	for _, userID := range []string{"alice", "first.last", "a.b.c", "*", ">", "has space", "ünïcode"} {
		t.Run(userID, func(t *testing.T) {
			subject := NotificationSubject(userID)
			tokens := strings.Split(subject, ".")
			assert.Equal(t, 2, len(tokens))
			check.Equal(t, "notifications", tokens[0])
			check.False(t, strings.ContainsAny(tokens[1], "*> \t"))
			check.True(t, tokens[1] != "")

			decoded, err := base64.RawURLEncoding.DecodeString(tokens[1])
			assert.NoError(t, err)
			check.Equal(t, userID, string(decoded))
		})
	}

	check.True(t, NotificationSubject("a.b") != NotificationSubject("a_b"))
	check.True(t, strings.HasPrefix(NotificationSubject("a.b"), strings.TrimSuffix(NotificationSubjects, "*")))
}
