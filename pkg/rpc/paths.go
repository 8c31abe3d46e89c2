package rpc

// Node REST paths.
const (
	consensusStatusPath = "/v0/consensusStatus"
	accountInfoPath     = "/v0/accountInfo/%s/%s" // block hash, account address
)
