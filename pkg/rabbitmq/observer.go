package rabbitmq

import "time"

// Delivery outcomes reported to an Observer.
const (
	OutcomeAck      = "ack"
	OutcomeNack     = "nack"
	OutcomeRequeue  = "requeue"
	OutcomeRejected = "rejected"
)

// Observer receives broker activity. pkg/metrics implements it.
type Observer interface {
	ObservePublish(subject string, err error)
	ObserveDelivery(subject, outcome string, took time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObservePublish(string, error)                 {}
func (nopObserver) ObserveDelivery(string, string, time.Duration) {}
