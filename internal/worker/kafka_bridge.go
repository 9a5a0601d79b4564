package worker

import (
	"context"

	"github.com/ajayykmr/sms-gateway/internal/kafka/consumer"
)

// NewRecordFromConsumer copies a consumer record into a worker record bound
// to commit, which runs once the job reached a final state.
func NewRecordFromConsumer(rec *consumer.Record, commit func(context.Context) error) *Record {
	if rec == nil {
		return nil
	}
	wr := &Record{
		Key:       append([]byte(nil), rec.Key...),
		Value:     append([]byte(nil), rec.Value...),
		Timestamp: rec.Timestamp,
		commit:    commit,
	}
	if len(rec.Headers) > 0 {
		wr.Headers = make(map[string][]byte, len(rec.Headers))
		for k, v := range rec.Headers {
			wr.Headers[k] = append([]byte(nil), v...)
		}
	}
	return wr
}

// NewRecord builds a record from raw bytes. Used by transports other than
// Kafka and by tests.
func NewRecord(key, value []byte, commit func(context.Context) error) *Record {
	return &Record{Key: key, Value: value, commit: commit}
}
