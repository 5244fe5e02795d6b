package events

import "github.com/rs/zerolog"

// LogSubscriber drains a subscription, logging each event at Info level,
// until the subscription channel is closed. Run it in its own goroutine.
func LogSubscriber(logger zerolog.Logger, sub Subscriber) {
	for ev := range sub {
		e := logger.Info().
			Str("event_type", string(ev.Type)).
			Time("event_time", ev.Timestamp)
		if ev.TaskID != "" {
			e = e.Str("task_id", ev.TaskID)
		}
		if ev.WorkerID != "" {
			e = e.Str("worker_id", ev.WorkerID)
		}
		for k, v := range ev.Metadata {
			e = e.Str(k, v)
		}
		e.Msg(ev.Message)
	}
}
