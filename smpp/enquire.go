// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package smpp

import (
	"context"

	"github.com/fiorix/go-smpp/smpp/pdu"
)

// RunEnquireLink is the timer task of §5: it issues enquire_link at
// cfg.EnquireLinkInterval and tears the session down (by closing it) if
// no response arrives within cfg.ResponseWindow (§4.C). It returns when
// ctx is cancelled, the session closes, or an enquire_link goes
// unanswered.
func (s *Session) RunEnquireLink(ctx context.Context) error {
	ticker := s.clock.NewTicker(s.cfg.EnquireLinkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.closeCh:
			return ErrSessionClosed
		case <-ticker.C():
			if _, err := s.SendRequest(ctx, pdu.NewEnquireLink(), s.cfg.ResponseWindow); err != nil {
				_ = s.Close()
				return ErrEnquireLinkTimeout
			}
		}
	}
}
