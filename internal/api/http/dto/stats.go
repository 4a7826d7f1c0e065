package dto

type StatsData struct {
	TotalKeys   int    `json:"totalKeys"`
	ActiveKeys  int    `json:"activeKeys"`
	UniqueIPs   int    `json:"uniqueIPs"`
	BlockedIPs  int    `json:"blockedIPs"`
	TotalUses   int    `json:"totalUses"`
	SuccessRate string `json:"successRate"`
}

type StatsResponse struct {
	Success bool      `json:"success"`
	Data    StatsData `json:"data"`
}

type HealthResponse struct {
	Status string `json:"status"`
}
