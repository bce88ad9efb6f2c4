package mq

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	// ExchangeName 运行事件发布到的 topic 交换机
	ExchangeName = "mailflow.events"

	connectionName = "mailflow"
	dialTimeout    = 10 * time.Second
	heartbeat      = 10 * time.Second
)

// exchangeDeclarer 是 amqp091.Channel 的子集
type exchangeDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp091.Table) error
}

// NewConnection dials the broker with a bounded connect timeout and a named
// connection so the run shows up in the management UI. Credentials never
// appear in the returned error.
func NewConnection(url string) (*amqp091.Connection, error) {
	props := amqp091.NewConnectionProperties()
	props.SetClientConnectionName(connectionName)

	conn, err := amqp091.DialConfig(url, amqp091.Config{
		Heartbeat:  heartbeat,
		Locale:     "en_US",
		Properties: props,
		Dial:       amqp091.DefaultDial(dialTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ at %s: %w", brokerAddr(url), err)
	}
	return conn, nil
}

// DeclareExchange declares ExchangeName as a durable topic exchange.
func DeclareExchange(ch exchangeDeclarer) error {
	if err := ch.ExchangeDeclare(ExchangeName, amqp091.ExchangeTopic, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", ExchangeName, err)
	}
	return nil
}

// brokerAddr 去掉用户名密码，只保留 host:port
func brokerAddr(url string) string {
	uri, err := amqp091.ParseURI(url)
	if err != nil {
		return "<invalid amqp url>"
	}
	return net.JoinHostPort(uri.Host, strconv.Itoa(uri.Port))
}
