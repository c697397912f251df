package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	auth "github.com/goliatone/go-authninja"
)

// MetadataKeyActorType stores the actor type derived from auth.ActorRef.Type.
const MetadataKeyActorType = "actor_type"

const (
	defaultChannel    = "settings"
	defaultObjectType = "account"
	defaultActorID    = "system"
)

// Normalized is a transport agnostic activity record for audit logs.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	maskEmails    bool
}

// Normalize converts an auth.ActivityEvent into a Normalized record.
func Normalize(event auth.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}

	return Normalized{
		ActorID: firstNonEmpty(
			strings.TrimSpace(event.Actor.ID),
			strings.TrimSpace(event.UserID),
			options.actorFallback,
		),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(event.UserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event, options.maskEmails),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithChannel sets the channel for normalized records.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithObjectType sets the object type for normalized records.
func WithObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when the event carries none.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

// WithMaskedEmails hides the local part of email addresses in metadata.
func WithMaskedEmails() Option {
	return func(opts *normalizeOptions) {
		opts.maskEmails = true
	}
}

// LogSink returns an activity sink that writes normalized records to logger.
func LogSink(logger *zerolog.Logger, opts ...Option) auth.ActivitySink {
	return auth.ActivitySinkFunc(func(_ context.Context, event auth.ActivityEvent) error {
		record := Normalize(event, opts...)
		logger.Info().
			Str("actor_id", record.ActorID).
			Str("verb", record.Verb).
			Str("object_type", record.ObjectType).
			Str("object_id", record.ObjectID).
			Str("channel", record.Channel).
			Interface("metadata", record.Metadata).
			Time("occurred_at", record.OccurredAt).
			Msg("activity")
		return nil
	})
}

// MaskEmail keeps the first character of the local part and the domain
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at <= 0 {
		return email
	}
	return email[:1] + "***" + email[at:]
}

func normalizeMetadata(event auth.ActivityEvent, maskEmails bool) map[string]any {
	metadata := cloneMap(event.Metadata)

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[MetadataKeyActorType]; !exists {
			metadata[MetadataKeyActorType] = actorType
		}
	}

	if maskEmails {
		if email, ok := metadata["email"].(string); ok {
			metadata["email"] = MaskEmail(email)
		}
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
