package config

// APIConfig exposes the planner over HTTP.
type APIConfig struct {
	// ListenAddr serves /api/plan and /api/runs when set.
	ListenAddr string `json:"listen_addr"`
	// Token, when set, is required as a bearer token on every request.
	Token string `json:"token"`
}
