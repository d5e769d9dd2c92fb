package scheduler

import "github.com/gen2brain/beeep"

// SendNotification shows a desktop notification. A missing notification
// daemon is reported, not fatal.
func SendNotification(title, message string) error {
	return beeep.Notify(title, message, "")
}
