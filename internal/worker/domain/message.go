package domain

import (
	counting "github.com/cuongbtq/inventory-counting/internal/counting/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// CommandMessage is an escalation command handed to the worker pool together
// with the delivery to acknowledge.
type CommandMessage struct {
	Command  counting.EscalationCommand
	Delivery amqp.Delivery
}
