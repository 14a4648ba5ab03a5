package models

// ChainTx is a transaction as returned by the indexer
type ChainTx struct {
	Hash        string `json:"hash"`
	From        string `json:"from"`
	To          string `json:"to"`
	Value       string `json:"value"`
	BlockNumber int64  `json:"blockNumber"`
	Gas         string `json:"gas"`
	GasPrice    string `json:"gasPrice"`
	Contract    string `json:"contractAddress,omitempty"`
}

// TxQuery selects the history of one address from a starting height.
// An empty Token selects base asset transfers.
type TxQuery struct {
	Address   string `json:"address"`
	FromBlock int64  `json:"fromBlock"`
	Token     string `json:"token,omitempty"`
}

// TxNotification is a transaction pushed by the indexer for a subscribed
// address. Token holds the contract, or is empty for the base asset.
type TxNotification struct {
	Address string  `json:"address"`
	Token   string  `json:"token"`
	Tx      ChainTx `json:"tx"`
}
