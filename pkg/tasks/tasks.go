package tasks

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	TypeRenewSubscription = "subscription:renew"
	TypeRenewAll          = "subscriptions:renew_all"
)

type RenewSubscriptionTaskPayload struct {
	UserKey string
}

func NewRenewSubscriptionTask(userKey string) (*asynq.Task, error) {
	payload, err := json.Marshal(RenewSubscriptionTaskPayload{UserKey: userKey})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeRenewSubscription, payload), nil
}

func NewRenewAllTask() (*asynq.Task, error) {
	return asynq.NewTask(TypeRenewAll, nil), nil
}
