package activity

import (
	"strings"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/google/uuid"
)

// ChannelAuth is the channel used for every credential flow record.
const ChannelAuth = "auth"

// RecordOption mutates the ActivityRecord produced by BuildRecord.
type RecordOption func(*types.ActivityRecord)

// WithChannel overrides the channel field used for downstream filtering.
func WithChannel(channel string) RecordOption {
	return func(record *types.ActivityRecord) {
		record.Channel = strings.TrimSpace(channel)
	}
}

// WithIP records the client address.
func WithIP(ip string) RecordOption {
	return func(record *types.ActivityRecord) {
		record.IP = strings.TrimSpace(ip)
	}
}

// BuildRecord constructs an auth-channel ActivityRecord about userID. The
// metadata map is copied.
func BuildRecord(userID uuid.UUID, verb, objectType string, metadata map[string]any, opts ...RecordOption) types.ActivityRecord {
	record := types.ActivityRecord{
		UserID:     userID,
		Verb:       strings.TrimSpace(verb),
		ObjectType: strings.TrimSpace(objectType),
		Channel:    ChannelAuth,
		Data:       cloneMap(metadata),
	}
	if userID != uuid.Nil {
		record.ObjectID = userID.String()
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&record)
		}
	}
	return record
}
