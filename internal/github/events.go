package github

type Event struct {
	Name  string
	Label string
}

// SupportedEvents are the event types the dispatcher fully parses and
// renders. Anything else short-circuits after logging.
var SupportedEvents = []Event{
	{Name: "push", Label: "Code pushes"},
	{Name: "pull_request", Label: "Pull requests"},
	{Name: "issues", Label: "Issues"},
}

// IsSupportedEvent reports whether the dispatcher can render eventType.
func IsSupportedEvent(eventType string) bool {
	for _, e := range SupportedEvents {
		if e.Name == eventType {
			return true
		}
	}
	return false
}
