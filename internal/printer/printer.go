package printer

import "github.com/taskly/trackd/internal/model"

// Printer knows how to print tracking information in different formats.
type Printer interface {
	PrintSessionList(sessions []model.TrackingSession) error
	PrintNotificationList(notifications []model.ScheduledNotification) error
	PrintMessage(msg string) error
}
