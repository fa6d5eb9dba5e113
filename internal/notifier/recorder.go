package notifier

import (
	"context"
	"log/slog"

	"dynamic_bot/internal/model"
	"dynamic_bot/internal/storage"
)

// Rollbacker restores a subject's last seen item after a failed delivery.
type Rollbacker interface {
	Rollback(subjectID int64, itemID, previous string) bool
}

// Recorder logs and journals delivery outcomes.
type Recorder struct {
	journal  storage.Journal
	states   Rollbacker
	rollback bool
	log      *slog.Logger
}

// NewRecorder creates a Recorder. With rollback set, a failed delivery restores the
// subject's previous item so the next cycle notifies again.
func NewRecorder(journal storage.Journal, states Rollbacker, rollback bool, log *slog.Logger) *Recorder {
	return &Recorder{
		journal:  journal,
		states:   states,
		rollback: rollback,
		log:      log,
	}
}

// Run records outcomes until the channel is closed.
func (r *Recorder) Run(ctx context.Context, outcomes <-chan Outcome) {
	for o := range outcomes {
		r.Record(ctx, o)
	}
}

// Record handles one outcome and returns the status it was journaled with.
func (r *Recorder) Record(ctx context.Context, o Outcome) model.DeliveryStatus {
	msg := o.Job.Message
	d := &model.Delivery{
		SubjectID: msg.SubjectID,
		ItemID:    msg.ItemID,
		Status:    model.DeliverySent,
		CreatedAt: o.At,
	}

	if o.Err == nil {
		r.log.Info("notification sent", "subject_id", msg.SubjectID, "item_id", msg.ItemID)
	} else {
		d.Status = model.DeliveryFailed
		d.Error = o.Err.Error()
		if r.rollback && r.states.Rollback(msg.SubjectID, msg.ItemID, o.Job.Previous) {
			d.Status = model.DeliveryRolledBack
		}
		r.log.Error("notification failed",
			"subject_id", msg.SubjectID, "item_id", msg.ItemID,
			"status", d.Status, "error", o.Err)
	}

	if r.journal != nil {
		if err := r.journal.RecordDelivery(ctx, d); err != nil {
			r.log.Error("record delivery", "subject_id", msg.SubjectID, "item_id", msg.ItemID, "error", err)
		}
	}
	return d.Status
}
