package veoracle

type BalanceResponse struct {
	Account   string `json:"account"`
	Timestamp uint64 `json:"timestamp"`
	Balance   string `json:"balance"`
}

type LockEndResponse struct {
	Account string `json:"account"`
	LockEnd uint64 `json:"lock_end"`
}

type SlopeResponse struct {
	Account string `json:"account"`
	Slope   string `json:"slope"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
