package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskKardexIntegrity is the task type for the periodic ledger scan.
	TaskKardexIntegrity = "kardex:integrity"
)

// KardexIntegrityPayload carries scheduling metadata for the ledger scan.
type KardexIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewKardexIntegrityTask constructs an Asynq task for the ledger scan.
func NewKardexIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(KardexIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskKardexIntegrity, body, asynq.Queue(QueueDefault)), nil
}
