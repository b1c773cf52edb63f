package fallback

// statusRule maps the monitor's view of the log to a Status. Rules are
// evaluated in order and the first match wins.
type statusRule struct {
	name   string
	match  func(last *Event, repeated bool) bool
	status Status
}

func lastReason(r Reason) func(*Event, bool) bool {
	return func(last *Event, _ bool) bool {
		return last != nil && last.Reason == r
	}
}

var statusRules = []statusRule{
	{
		name:   "no_events",
		match:  func(last *Event, _ bool) bool { return last == nil },
		status: Status{UsingFallback: false, Severity: SeverityInfo, Message: "Using live data"},
	},
	{
		name:   "disabled",
		match:  lastReason(ReasonSourceDisabled),
		status: Status{UsingFallback: true, Severity: SeverityInfo, Message: "Primary source disabled by configuration", Reason: ReasonSourceDisabled},
	},
	{
		// Escalation outranks the reason of the latest single event.
		name:   "repeated_failures",
		match:  func(_ *Event, repeated bool) bool { return repeated },
		status: Status{UsingFallback: true, Severity: SeverityError, Message: "Primary source degraded after repeated failures"},
	},
	{
		name:   "fetch_failed",
		match:  lastReason(ReasonFetchFailed),
		status: Status{UsingFallback: true, Severity: SeverityWarning, Message: "Primary source temporarily unavailable", Reason: ReasonFetchFailed},
	},
	{
		name:   "client_not_ready",
		match:  lastReason(ReasonClientNotReady),
		status: Status{UsingFallback: true, Severity: SeverityWarning, Message: "Primary client not initialized", Reason: ReasonClientNotReady},
	},
	{
		name:   "default",
		match:  func(*Event, bool) bool { return true },
		status: Status{UsingFallback: true, Severity: SeverityInfo, Message: "Using fallback data"},
	},
}

// classify returns the status and the name of the rule that produced it.
func classify(last *Event, repeated bool) (Status, string) {
	for _, rule := range statusRules {
		if rule.match(last, repeated) {
			st := rule.status
			if st.Reason == "" && last != nil && rule.name != "no_events" {
				st.Reason = last.Reason
			}
			return st, rule.name
		}
	}
	return Status{Severity: SeverityInfo, Message: "Using live data"}, "none"
}
