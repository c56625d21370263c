package notifier

const Subject = "Your Scheduled Reminder!"

// Render builds the fixed reminder subject and body around message.
func Render(message string) (subject, body string) {
	return Subject, "Hello,\n\nThis is your reminder:\n\n" + message + "\n\nBest regards,\nYour Alarm System"
}
