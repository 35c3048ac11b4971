// Package queue contains the background consumer that listens to the
// referral.email queue and hands each event to the SMTP mailer.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog/log"

	"github.com/topgun312/referal-api-test/internal/mailer"
)

// StartReferralEmailConsumer connects to RabbitMQ, declares the
// referral.email queue (durable), and starts consuming messages. Each
// message is rendered and sent through the mailer. The function runs a
// reconnect loop and keeps running across broker restarts; processing
// errors are logged and the offending message is rejected without requeue
// so a bad payload cannot wedge the queue.
func StartReferralEmailConsumer(m *mailer.Mailer) {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.Warn().Err(err).Dur("retry_in", backoff).Msg("referral-consumer: failed to dial broker")
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = consumeLoop(conn, m)
		// Close before redialing: a channel-level failure leaves the
		// connection itself open, and redialing without closing would leak
		// one connection per reconnect cycle.
		_ = conn.Close()
		if err != nil {
			log.Warn().Err(err).Msg("referral-consumer: consume loop ended; reconnecting")
			time.Sleep(2 * time.Second)
		}
	}
}

func consumeLoop(conn *amqp.Connection, m *mailer.Mailer) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		log.Warn().Err(err).Msg("referral-consumer: set QoS failed")
	}

	if _, err := ch.QueueDeclare(referralQueueName, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(referralQueueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for d := range msgs {
		if err := handleMessage(d.Body, m); err != nil {
			log.Error().Err(err).Msg("referral-consumer: handle message failed")
			_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed")
}

func handleMessage(body []byte, m *mailer.Mailer) error {
	var ev ReferralEmailEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if !m.Configured() {
		return fmt.Errorf("mailer not configured, dropping message for %s", ev.ToEmail)
	}
	if err := m.SendReferralCode(ev.ToEmail, ev.Username, ev.Code, ev.Link, ev.LinkLabel); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	log.Info().Str("to", ev.ToEmail).Uint64("code", ev.Code).Msg("referral-consumer: code sent")
	return nil
}
