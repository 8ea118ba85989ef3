// ABOUTME: Optional end-to-end encryption for the hand-off bridge account
// ABOUTME: A per-account key store file backs the mautrix cryptohelper

package matrix

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/crypto/cryptohelper"
	"maunium.net/go/mautrix/id"

	"github.com/2389/coven-handoff/internal/config"
)

// ErrNoDeviceID is returned when encryption is requested for a client
// without a device ID.
var ErrNoDeviceID = errors.New("encryption requires a device ID")

// keyStore is the SQLite file holding one account's Olm and Megolm state.
type keyStore struct {
	path    string
	account id.UserID
}

func newKeyStore(dataDir string, account id.UserID) (keyStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return keyStore{}, fmt.Errorf("creating data directory: %w", err)
	}
	name := "handoff-crypto-" + accountSlug(account) + ".db"
	return keyStore{path: filepath.Join(dataDir, name), account: account}, nil
}

// pickleKey is the key the helper encrypts stored sessions with. It is
// stable per account so a restart can read what the last run wrote.
func (k keyStore) pickleKey() []byte {
	sum := sha256.Sum256([]byte("coven-handoff-crypto:" + string(k.account)))
	return sum[:]
}

// storedDevice returns the device the store was created for, or "" when
// there is no store or no account in it yet.
func (k keyStore) storedDevice() (id.DeviceID, error) {
	if _, err := os.Stat(k.path); errors.Is(err, os.ErrNotExist) {
		return "", nil
	}
	db, err := sql.Open("sqlite3", k.path)
	if err != nil {
		return "", err
	}
	defer db.Close()

	var device string
	err = db.QueryRow("SELECT device_id FROM crypto_account LIMIT 1").Scan(&device)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id.DeviceID(device), nil
}

// reset deletes the store and its WAL files.
func (k keyStore) reset() error {
	var errs []error
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if err := os.Remove(k.path + suffix); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("resetting crypto store: %w", err)
	}
	return nil
}

// claim makes the store usable by device. Keys from another device can
// never decrypt for this one, so such a store is discarded. It must run
// before the helper opens the file.
func (k keyStore) claim(device id.DeviceID, logger *slog.Logger) error {
	stored, err := k.storedDevice()
	if err != nil {
		logger.Debug("could not read stored device", "db", k.path, "error", err)
		return nil
	}
	if stored == "" || stored == device {
		return nil
	}
	logger.Warn("crypto store belongs to another device, resetting", "stored_device", stored, "device", device)
	return k.reset()
}

// accountSlug turns "@handoff:matrix.org" into "handoff_matrix.org".
func accountSlug(account id.UserID) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r == ':':
			return '_'
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		}
		return -1
	}, strings.TrimPrefix(string(account), "@"))
}

// Encryption owns the crypto helper installed on a client.
type Encryption struct {
	helper   *cryptohelper.CryptoHelper
	store    keyStore
	verified bool
	logger   *slog.Logger
}

// SetupEncryption enables E2EE on client, which must already carry its
// device ID. Keys live under dataDir. With a recovery key the device also
// cross-signs itself; a failed verification is logged and encryption still
// works.
func SetupEncryption(ctx context.Context, client *mautrix.Client, cfg config.EncryptionConfig, dataDir string, logger *slog.Logger) (*Encryption, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "matrix-crypto")

	if client.DeviceID == "" {
		return nil, ErrNoDeviceID
	}
	store, err := newKeyStore(dataDir, client.UserID)
	if err != nil {
		return nil, err
	}
	if err := store.claim(client.DeviceID, logger); err != nil {
		return nil, err
	}

	helper, err := cryptohelper.NewCryptoHelper(client, store.pickleKey(), store.path)
	if err != nil {
		return nil, fmt.Errorf("creating crypto helper: %w", err)
	}
	if err := helper.Init(ctx); err != nil {
		return nil, fmt.Errorf("initializing crypto helper: %w", err)
	}
	client.Crypto = helper

	enc := &Encryption{helper: helper, store: store, logger: logger}
	if cfg.RecoveryKey != "" {
		if err := enc.verify(ctx, cfg.RecoveryKey); err != nil {
			logger.Warn("cross-signing verification failed", "error", err)
		}
	}
	logger.Info("encryption ready", "db", store.path, "device_id", client.DeviceID, "cross_signed", enc.verified)
	return enc, nil
}

func (e *Encryption) verify(ctx context.Context, recoveryKey string) error {
	machine := e.helper.Machine()
	if machine == nil {
		return errors.New("crypto machine not initialized")
	}
	if err := machine.VerifyWithRecoveryKey(ctx, recoveryKey); err != nil {
		return fmt.Errorf("verifying with recovery key: %w", err)
	}
	e.verified = true
	return nil
}

// Verified reports whether the device cross-signed itself at startup.
func (e *Encryption) Verified() bool {
	return e != nil && e.verified
}

// Close releases the key store.
func (e *Encryption) Close() error {
	if e == nil || e.helper == nil {
		return nil
	}
	return e.helper.Close()
}
