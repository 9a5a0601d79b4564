package worker

import (
	"context"

	"github.com/ajayykmr/sms-gateway/internal/kafka/consumer"
)

// Committer commits consumed offsets. *consumer.Consumer satisfies it.
type Committer interface {
	Commit(ctx context.Context, record *consumer.Record) error
}

// KafkaHandler returns a consumer.Handler feeding records to engine. Offsets
// are committed through cons once a job is final, so jobs interrupted by a
// shutdown are redelivered.
func KafkaHandler(engine *Engine, cons Committer) consumer.Handler {
	return func(ctx context.Context, rec *consumer.Record) error {
		if engine == nil || rec == nil {
			return nil
		}
		commit := func(context.Context) error { return nil }
		if cons != nil {
			commit = func(c context.Context) error { return cons.Commit(c, rec) }
		}
		engine.HandleRecord(ctx, NewRecordFromConsumer(rec, commit))
		return nil
	}
}
