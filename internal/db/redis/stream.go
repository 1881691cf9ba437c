package redis

import (
	"context"
	"time"

	"github.com/redis/rueidis"

	"github.com/keonho-kim/svve/internal/db"
)

// StreamAdd appends an entry to a stream and returns its generated id.
func (s *Store) StreamAdd(ctx context.Context, stream string, fields map[string]string) (string, error) {
	cmd := s.b().Xadd().Key(stream).Id("*").FieldValue()
	for k, v := range fields {
		cmd = cmd.FieldValue(k, v)
	}
	id, err := s.do(ctx, cmd.Build()).ToString()
	if err != nil {
		return "", &db.Error{Op: db.OpXAdd, Err: err}
	}
	return id, nil
}

// StreamLen returns the number of entries in a stream. A missing stream has
// length zero.
func (s *Store) StreamLen(ctx context.Context, stream string) (int64, error) {
	cmd := s.b().Xlen().Key(stream).Build()
	n, err := s.do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, &db.Error{Op: db.OpXLen, Err: err}
	}
	return n, nil
}

// StreamGroupCreate creates a consumer group, creating the stream when
// absent. An already-existing group is not an error.
func (s *Store) StreamGroupCreate(ctx context.Context, stream, group string) error {
	cmd := s.b().XgroupCreate().Key(stream).Group(group).Id("0").Mkstream().Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "BUSYGROUP") {
			return nil
		}
		return &db.Error{Op: db.OpXGroup, Err: err}
	}
	return nil
}

// StreamReadGroup reads up to count pending entries for a consumer, blocking
// up to block when the stream is empty.
func (s *Store) StreamReadGroup(
	ctx context.Context, stream, group, consumer string, count int64, block time.Duration,
) ([]db.StreamMessage, error) {
	cmd := s.b().Xreadgroup().
		Group(group, consumer).
		Count(count).
		Block(block.Milliseconds()).
		Streams().Key(stream).Id(">").
		Build()

	streams, err := s.do(ctx, cmd).AsXRead()
	if err != nil {
		// A block timeout yields a nil reply, not an error worth surfacing.
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, &db.Error{Op: db.OpXReadGroup, Err: err}
	}

	var messages []db.StreamMessage
	for _, entries := range streams {
		for _, entry := range entries {
			messages = append(messages, db.StreamMessage{
				ID:     entry.ID,
				Fields: entry.FieldValues,
			})
		}
	}
	return messages, nil
}

// StreamAck acknowledges processed entries for a consumer group.
func (s *Store) StreamAck(ctx context.Context, stream, group string, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}
	cmd := s.b().Xack().Key(stream).Group(group).Id(ids...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		return &db.Error{Op: db.OpXAck, Err: err}
	}
	return nil
}
