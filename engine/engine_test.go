package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/jinzhu/gorm"
	_ "github.com/jinzhu/gorm/dialects/sqlite"
	"github.com/stretchr/testify/require"

	"github.com/rakage/Chat-Bridge-sub000/models"
	"github.com/rakage/Chat-Bridge-sub000/tools"
)

const testCipherKey = "6368616e676520746869732070617373776f726420746f206120736563726574"

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	// Every pooled connection gets its own in-memory database; keep the
	// pool at one so all queries see the same schema and rows.
	db.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.Channel{},
		&models.Conversation{},
		&models.Message{},
		&models.InboundEvent{},
		&models.DeadLetter{},
	).Error)
	return db
}

func newTestCipher(t *testing.T) *tools.Cipher {
	t.Helper()
	c, err := tools.NewCipher(testCipherKey)
	require.NoError(t, err)
	return c
}

// seedChannel inserts a connected channel with an encrypted token and
// returns the row.
func seedChannel(t *testing.T, db *gorm.DB, cipher *tools.Cipher, tenantID int64, platform, externalID string) models.Channel {
	t.Helper()
	sealed, err := cipher.Encrypt("token-for-" + externalID)
	require.NoError(t, err)

	ch := models.Channel{
		TenantID:     tenantID,
		Platform:     platform,
		ExternalID:   externalID,
		AccessToken:  sealed,
		Capabilities: "messages,postbacks,receipts",
		Status:       models.CHANNEL_STATUS_CONNECTED,
	}
	require.NoError(t, db.Create(&ch).Error)
	return ch
}

func testCredential(ch models.Channel) *Credential {
	return &Credential{
		Channel:      ch,
		Token:        "token-for-" + ch.ExternalID,
		Capabilities: []string{"messages", "postbacks", "receipts"},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
