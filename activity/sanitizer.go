package activity

import (
	"context"
	"sync"

	"github.com/goliatone/go-credentials/pkg/types"
	"github.com/goliatone/go-masker"
)

var sensitiveFields = []string{
	"password",
	"Password",
	"secret",
	"Secret",
	"token",
	"access_token",
	"refresh_token",
	"credential",
	"id_token",
}

var defaultMaskerOnce sync.Once

// DefaultMasker returns the shared masker with credential fields registered.
func DefaultMasker() *masker.Masker {
	defaultMaskerOnce.Do(func() {
		if masker.Default == nil {
			return
		}
		registerDefaultMaskFields(masker.Default)
	})
	return masker.Default
}

// SanitizeRecord masks sensitive values in the activity record data payload.
// If masking fails the payload is dropped rather than logged in clear.
func SanitizeRecord(mask *masker.Masker, record types.ActivityRecord) types.ActivityRecord {
	if len(record.Data) == 0 {
		return record
	}
	if mask == nil {
		mask = DefaultMasker()
	}
	if mask == nil {
		record.Data = map[string]any{}
		return record
	}

	masked, err := mask.Mask(cloneMap(record.Data))
	if err != nil {
		record.Data = map[string]any{}
		return record
	}

	switch masked := masked.(type) {
	case map[string]any:
		record.Data = masked
	default:
		record.Data = map[string]any{}
	}
	return record
}

// SanitizeRecords masks sensitive values for every record in the slice.
func SanitizeRecords(mask *masker.Masker, records []types.ActivityRecord) []types.ActivityRecord {
	if len(records) == 0 {
		return records
	}
	out := make([]types.ActivityRecord, 0, len(records))
	for _, record := range records {
		out = append(out, SanitizeRecord(mask, record))
	}
	return out
}

// SanitizingSink masks every record before forwarding it.
type SanitizingSink struct {
	Sink   types.ActivitySink
	Masker *masker.Masker
}

var _ types.ActivitySink = (*SanitizingSink)(nil)

// Log implements types.ActivitySink.
func (s *SanitizingSink) Log(ctx context.Context, record types.ActivityRecord) error {
	if s == nil || s.Sink == nil {
		return nil
	}
	return s.Sink.Log(ctx, SanitizeRecord(s.Masker, record))
}

func registerDefaultMaskFields(mask *masker.Masker) {
	if mask == nil {
		return
	}
	for _, field := range sensitiveFields {
		mask.RegisterMaskField(field, "filled4")
	}
}
