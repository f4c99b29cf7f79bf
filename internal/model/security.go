package model

// FirewallEventGroup is one upstream row of firewall events grouped by
// (source, action).
type FirewallEventGroup struct {
	Source string `json:"source"`
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// CategoryCount is a ranked security category (source/action pair).
type CategoryCount struct {
	Category string `json:"category"` // "source/action"
	Source   string `json:"source"`
	Action   string `json:"action"`
	Count    int64  `json:"count"`
}

// SecuritySnapshot is the security section of a report.
type SecuritySnapshot struct {
	TotalFirewallActions int64           `json:"total_firewall_actions"`
	BotActions           int64           `json:"bot_actions"`
	TopCategories        []CategoryCount `json:"top_categories"`
}
