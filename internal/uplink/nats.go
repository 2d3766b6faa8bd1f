package uplink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"beepsat/internal/cdh"
	"beepsat/internal/domain"
)

// NATS is the primary command transport: a subscription on the uplink
// subject feeding the CDH inbox, with receipt acks on the ack subject.
type NATS struct {
	nc         *nats.Conn
	inbox      *cdh.Inbox
	subject    string
	ackSubject string
	sub        *nats.Subscription
}

// NewNATS creates the transport around an established connection.
func NewNATS(nc *nats.Conn, inbox *cdh.Inbox, subject, ackSubject string) *NATS {
	return &NATS{nc: nc, inbox: inbox, subject: subject, ackSubject: ackSubject}
}

// Start subscribes to the uplink subject.
func (u *NATS) Start(ctx context.Context) error {
	sub, err := u.nc.Subscribe(u.subject, u.onMessage)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", u.subject, err)
	}
	u.sub = sub
	log.Info().Str("subject", u.subject).Msg("uplink subscribed")
	return nil
}

// Stop unsubscribes.
func (u *NATS) Stop() error {
	if u.sub == nil {
		return nil
	}
	return u.sub.Unsubscribe()
}

func (u *NATS) onMessage(msg *nats.Msg) {
	cmd, err := Decode(msg.Data, time.Now())
	if err != nil {
		log.Warn().Err(err).Msg("uplink message rejected at transport")
		u.publishAck(ack{Queued: false, Error: err.Error()})
		return
	}
	queued := u.inbox.Offer(cmd)
	u.publishAck(ack{CorrelationID: cmd.CorrelationID, Queued: queued})
}

func (u *NATS) publishAck(a ack) {
	if u.ackSubject == "" {
		return
	}
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := u.nc.Publish(u.ackSubject, data); err != nil {
		log.Warn().Err(err).Msg("uplink ack publish failed")
	}
}

// Respond sends a command response (e.g. the STATUS report) down the link.
// It satisfies cdh.Responder.
func (u *NATS) Respond(cmd domain.Command, payload []byte) {
	reply := struct {
		CorrelationID string          `json:"correlation_id"`
		Data          json.RawMessage `json:"data"`
	}{CorrelationID: cmd.CorrelationID, Data: payload}
	data, err := json.Marshal(reply)
	if err != nil {
		return
	}
	if err := u.nc.Publish(u.ackSubject, data); err != nil {
		log.Warn().Err(err).Msg("command response publish failed")
	}
}
