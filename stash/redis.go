// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package stash

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/areski/vumi/bus"
	"github.com/areski/vumi/errors"
)

const (
	seqPrefix       = "seq"
	msgPrefix       = "msg"
	remotePrefix    = "remote"
	multipartPrefix = "multipart"
)

var _ Stash = (*redisStash)(nil)

type redisStash struct {
	client *redis.Client
	ttl    TTLs
}

// Connect parses the given Redis URL (e.g. "redis://localhost:6379/0")
// and returns a client for it. It does not contact the server: the
// client opens connections on first use, so only a malformed URL fails
// here.
func Connect(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// NewRedis returns a Stash backed by a Redis client.
func NewRedis(client *redis.Client, ttl TTLs) Stash {
	return &redisStash{client: client, ttl: ttl}
}

func (s *redisStash) CacheMessage(ctx context.Context, msg bus.OutboundMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return errors.Wrap(ErrBackend, err)
	}
	key := fmt.Sprintf("%s:%s", msgPrefix, msg.MessageID)
	if err := s.client.Set(ctx, key, data, s.ttl.SubmitSMExpiry).Err(); err != nil {
		return errors.Wrap(ErrBackend, err)
	}
	return nil
}

func (s *redisStash) GetCachedMessage(ctx context.Context, id string) (bus.OutboundMessage, bool, error) {
	key := fmt.Sprintf("%s:%s", msgPrefix, id)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return bus.OutboundMessage{}, false, nil
	}
	if err != nil {
		return bus.OutboundMessage{}, false, errors.Wrap(ErrBackend, err)
	}
	var msg bus.OutboundMessage
	if err := json.Unmarshal([]byte(val), &msg); err != nil {
		return bus.OutboundMessage{}, false, errors.Wrap(ErrBackend, err)
	}
	return msg, true, nil
}

func (s *redisStash) DeleteCachedMessage(ctx context.Context, id string) error {
	key := fmt.Sprintf("%s:%s", msgPrefix, id)
	if err := s.client.Del(ctx, key).Err(); err != nil && err != redis.Nil {
		return errors.Wrap(ErrBackend, err)
	}
	return nil
}

func (s *redisStash) SetSequenceNumberMessageID(ctx context.Context, seq uint32, id string) error {
	key := fmt.Sprintf("%s:%d", seqPrefix, seq)
	if err := s.client.Set(ctx, key, id, s.ttl.SubmitSMExpiry).Err(); err != nil {
		return errors.Wrap(ErrBackend, err)
	}
	return nil
}

func (s *redisStash) GetSequenceNumberMessageID(ctx context.Context, seq uint32) (string, bool, error) {
	key := fmt.Sprintf("%s:%d", seqPrefix, seq)
	val, err := s.client.GetDel(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(ErrBackend, err)
	}
	return val, true, nil
}

func (s *redisStash) SetRemoteMessageID(ctx context.Context, internalID, remoteID string) error {
	key := fmt.Sprintf("%s:%s", remotePrefix, remoteID)
	if err := s.client.Set(ctx, key, internalID, s.ttl.ThirdPartyIDExpiry).Err(); err != nil {
		return errors.Wrap(ErrBackend, err)
	}
	return nil
}

func (s *redisStash) GetInternalMessageID(ctx context.Context, remoteID string) (string, bool, error) {
	key := fmt.Sprintf("%s:%s", remotePrefix, remoteID)
	val, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrap(ErrBackend, err)
	}
	return val, true, nil
}

func (s *redisStash) AddMultipartSegment(ctx context.Context, key MultipartKey, seg MultipartSegment, total int) ([]MultipartSegment, bool, error) {
	hkey := multipartHashKey(key)

	if err := s.client.HSet(ctx, hkey, strconv.Itoa(seg.Index), seg.Text).Err(); err != nil {
		return nil, false, errors.Wrap(ErrBackend, err)
	}
	if err := s.client.Expire(ctx, hkey, s.ttl.MultipartExpiry).Err(); err != nil {
		return nil, false, errors.Wrap(ErrBackend, err)
	}

	all, err := s.client.HGetAll(ctx, hkey).Result()
	if err != nil {
		return nil, false, errors.Wrap(ErrBackend, err)
	}
	if len(all) < total {
		return nil, false, nil
	}

	segments := make([]MultipartSegment, 0, len(all))
	for idxStr, text := range all {
		idx, convErr := strconv.Atoi(idxStr)
		if convErr != nil {
			continue
		}
		segments = append(segments, MultipartSegment{Index: idx, Text: text})
	}
	sort.Slice(segments, func(i, j int) bool { return segments[i].Index < segments[j].Index })

	if err := s.client.Del(ctx, hkey).Err(); err != nil && err != redis.Nil {
		return nil, false, errors.Wrap(ErrBackend, err)
	}
	return segments, true, nil
}

func multipartHashKey(key MultipartKey) string {
	return fmt.Sprintf("%s:%d:%s:%s", multipartPrefix, key.RefNum, key.From, key.To)
}
