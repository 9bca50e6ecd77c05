// README: Kafka connectivity check for the booking events topic.
package infra

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	kafkago "github.com/segmentio/kafka-go"
)

var errNoBrokers = errors.New("kafka: no brokers configured")

type kafkaDialer interface {
	DialContext(ctx context.Context, network, address string) (*kafkago.Conn, error)
}

// CheckKafka dials the first reachable broker and makes sure topic exists, creating it
// with one partition when the cluster allows it.
func CheckKafka(ctx context.Context, brokers []string, topic string) error {
	return checkKafka(ctx, &kafkago.Dialer{Timeout: 5 * time.Second}, brokers, topic)
}

func checkKafka(ctx context.Context, dialer kafkaDialer, brokers []string, topic string) error {
	if len(brokers) == 0 {
		return errNoBrokers
	}
	var lastErr error
	for _, broker := range brokers {
		conn, err := dialer.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		err = ensureTopic(ctx, dialer, conn, topic)
		_ = conn.Close()
		return err
	}
	return fmt.Errorf("kafka: dial %v: %w", brokers, lastErr)
}

func ensureTopic(ctx context.Context, dialer kafkaDialer, conn *kafkago.Conn, topic string) error {
	if _, err := conn.ReadPartitions(topic); err == nil {
		return nil
	}
	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("kafka: find controller: %w", err)
	}
	ctrl, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port)))
	if err != nil {
		return fmt.Errorf("kafka: dial controller: %w", err)
	}
	defer ctrl.Close()
	if err := ctrl.CreateTopics(kafkago.TopicConfig{Topic: topic, NumPartitions: 1, ReplicationFactor: 1}); err != nil {
		return fmt.Errorf("kafka: create topic %s: %w", topic, err)
	}
	return nil
}
