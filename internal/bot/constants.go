package bot

const (
	StateAwaitingSchedule = "awaiting_schedule"

	commandStart   = "start"
	commandHelp    = "help"
	commandCancel  = "cancel"
	commandPending = "pending"
	commandStats   = "stats"
)
