package notifier

import (
	"github.com/thanhnp/wallet-ledger/internal/models"
)

// AccountNotifier defines the interface for indexer push feeds
type AccountNotifier interface {
	// Start connects to the feed and begins listening for notifications
	Start() error

	// Stop closes the feed and its channels
	Stop() error

	// SubscribeToAccount asks the feed for the transactions of address,
	// including transfers of the given token contracts. Subscriptions are
	// replayed after a reconnect.
	SubscribeToAccount(address string, tokens []string) error

	// Notifications delivers pushed transactions. Delivery is at least once
	// and may be duplicated or out of order.
	Notifications() <-chan models.TxNotification

	// Errors delivers feed failures such as a dropped connection
	Errors() <-chan error
}
