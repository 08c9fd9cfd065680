package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/fnsign/internal/common"
	"github.com/ternarybob/fnsign/internal/interfaces"
	"github.com/ternarybob/fnsign/internal/storage/badger"
	"github.com/ternarybob/fnsign/internal/storage/filecache"
)

// NewCredentialCache creates the credential cache selected by config.Storage.Type
func NewCredentialCache(logger arbor.ILogger, config *common.Config) (interfaces.CredentialCache, error) {
	switch config.Storage.Type {
	case "", "file":
		return filecache.NewCache(config.Storage, logger), nil
	case "badger":
		db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
		if err != nil {
			return nil, err
		}
		return badger.NewCredentialStorage(db, logger), nil
	default:
		return nil, fmt.Errorf("%w: unsupported storage type: %s", common.ErrConfiguration, config.Storage.Type)
	}
}
