package session

import "github.com/aramb-dev/SystemVoiceMemos-sub000/internal/types"

// MultiNotifier fans status snapshots out to several notifiers. Nil
// notifiers are skipped.
func MultiNotifier(notifiers ...Notifier) Notifier {
	kept := make(multiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			kept = append(kept, n)
		}
	}
	return kept
}

type multiNotifier []Notifier

func (m multiNotifier) Publish(status types.SessionStatus) {
	for _, n := range m {
		n.Publish(status)
	}
}
