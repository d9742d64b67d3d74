package feed

import (
	"context"
	"fmt"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// Publisher writes raw feed records onto the JetStream subjects the
// subscriber consumes from. It is the producer side of the record stream,
// used for backfill and replay.
type Publisher struct {
	js       jetstream.JetStream
	subjects map[string]string
	log      zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, log zerolog.Logger) *Publisher {
	subjects := make(map[string]string)
	for _, cfg := range DefaultSubjects() {
		subjects[cfg.RecordType] = strings.TrimSuffix(cfg.Subject, ".>")
	}
	return &Publisher{js: js, subjects: subjects, log: log}
}

// Publish sends one raw record of the given type, tagged with the venue it
// came from. The payload must be the wire-format JSON the parser accepts.
func (p *Publisher) Publish(ctx context.Context, recordType, venue string, payload []byte) error {
	prefix, ok := p.subjects[recordType]
	if !ok {
		return fmt.Errorf("unknown record type %q", recordType)
	}
	subject := prefix + "." + venue

	ack, err := p.js.Publish(ctx, subject, payload)
	if err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	p.log.Debug().Str("subject", subject).Uint64("seq", ack.Sequence).Msg("record published")
	return nil
}
