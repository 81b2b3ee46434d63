package model

// LogRecord is the normalized representation of a raw chain log entry.
type LogRecord struct {
	BlockNumber uint64   `json:"block_number"`
	BlockHash   string   `json:"block_hash"`
	TxHash      string   `json:"tx_hash"`
	TxIndex     uint64   `json:"tx_index"`
	LogIndex    uint64   `json:"log_index"`
	Address     string   `json:"address"`
	Topics      []string `json:"topics"`
	Data        string   `json:"data"`
	Removed     bool     `json:"removed"`
}

// ID returns the event identity of the underlying log.
func (lr LogRecord) ID() EventID {
	return EventID{TxHash: lr.TxHash, LogIndex: lr.LogIndex}
}
