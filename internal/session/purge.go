package session

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"
)

// purgeTimeout bounds one purge run.
const purgeTimeout = time.Minute

// PurgeTask periodically deletes expired sessions.
type PurgeTask struct {
	store *Store
	cron  *cron.Cron
}

// NewPurgeTask schedules Store.Purge with a standard cron expression or descriptor such as "@hourly".
func NewPurgeTask(store *Store, schedule string) (*PurgeTask, error) {
	task := &PurgeTask{store: store, cron: cron.New()}
	if _, errAdd := task.cron.AddFunc(schedule, task.run); errAdd != nil {
		return nil, fmt.Errorf("session: purge schedule %q: %w", schedule, errAdd)
	}
	return task, nil
}

// Start runs the scheduler in the background.
func (t *PurgeTask) Start() {
	t.cron.Start()
	log.Info("session purge task started")
}

// Stop halts the scheduler and waits for a running purge to finish.
func (t *PurgeTask) Stop() {
	<-t.cron.Stop().Done()
}

func (t *PurgeTask) run() {
	ctx, cancel := context.WithTimeout(context.Background(), purgeTimeout)
	defer cancel()
	removed, errPurge := t.store.Purge(ctx)
	if errPurge != nil {
		log.WithError(errPurge).Error("session purge failed")
		return
	}
	if removed > 0 {
		log.WithField("removed", removed).Info("expired sessions purged")
	}
}
