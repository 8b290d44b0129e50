package storage

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/suadeo/internal/common"
	"github.com/ternarybob/suadeo/internal/interfaces"
	"github.com/ternarybob/suadeo/internal/storage/badger"
)

// NewStorageManager creates a new storage manager based on config.
// Badger is the only backend; reviews, threads, and KV pairs all live
// in the one store.
func NewStorageManager(logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	badgerConfig := config.Storage.Badger

	// reset_on_startup exists for clean test runs; never honor it against
	// a production corpus
	if badgerConfig.ResetOnStartup && config.IsProduction() {
		logger.Warn().Str("path", badgerConfig.Path).Msg("Ignoring reset_on_startup in production environment")
		badgerConfig.ResetOnStartup = false
	}

	return badger.NewManager(logger, &badgerConfig)
}
