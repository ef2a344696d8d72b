package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"pqcall/internal/domain"
)

// tokenRecord is the relational shape of domain.TokenMetadata. Only the
// storage hash is persisted; raw token values never reach this table. When a
// field cipher is configured the user id and revocation reason columns hold
// sealed blobs instead of plaintext.
type tokenRecord struct {
	Hash          string `gorm:"primaryKey;size:64"`
	Algorithm     string `gorm:"size:32;not null"`
	Salt          string `gorm:"size:64;not null"`
	UserID        string `gorm:"type:text;not null"`
	CreatedAt     time.Time
	ExpiresAt     *time.Time `gorm:"index"`
	Revoked       bool       `gorm:"not null;default:false"`
	RevokedAt     *time.Time
	RevokedReason string `gorm:"type:text"`
	// Revocation grace in nanoseconds.
	RevocationGrace int64 `gorm:"not null;default:0"`
}

func (tokenRecord) TableName() string { return "secure_tokens" }

// GormTokenStore persists token metadata in Postgres through gorm.
type GormTokenStore struct {
	db     *gorm.DB
	cipher FieldCipher
}

// OpenGorm connects to Postgres and migrates the token table. cipher may be
// nil, in which case identity columns are stored in the clear.
func OpenGorm(dsn string, cipher FieldCipher) (*GormTokenStore, error) {
	if dsn == "" {
		return nil, errors.New("empty database DSN")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&tokenRecord{}); err != nil {
		return nil, err
	}
	return &GormTokenStore{db: db, cipher: cipher}, nil
}

// NewGormTokenStore wraps an existing gorm handle, for callers that manage
// the connection themselves.
func NewGormTokenStore(db *gorm.DB, cipher FieldCipher) *GormTokenStore {
	return &GormTokenStore{db: db, cipher: cipher}
}

func (s *GormTokenStore) SaveToken(ctx context.Context, meta domain.TokenMetadata) error {
	rec, err := s.toRecord(meta)
	if err != nil {
		return dbFailure("sealing token fields", err)
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueConstraintError(err) {
			return domain.WrapFailure(domain.KindInfrastructure, domain.CodeDatabaseError,
				"token hash already stored", err)
		}
		return dbFailure("saving token", err)
	}
	return nil
}

func (s *GormTokenStore) LookupToken(ctx context.Context, hash string) (domain.TokenMetadata, bool, error) {
	var rec tokenRecord
	err := s.db.WithContext(ctx).First(&rec, "hash = ?", hash).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.TokenMetadata{}, false, nil
	}
	if err != nil {
		return domain.TokenMetadata{}, false, dbFailure("looking up token", err)
	}
	meta, err := s.fromRecord(rec)
	if err != nil {
		return domain.TokenMetadata{}, false, dbFailure("opening token fields", err)
	}
	return meta, true, nil
}

func (s *GormTokenStore) UpdateToken(ctx context.Context, meta domain.TokenMetadata) error {
	rec, err := s.toRecord(meta)
	if err != nil {
		return dbFailure("sealing token fields", err)
	}
	res := s.db.WithContext(ctx).Model(&tokenRecord{}).
		Where("hash = ?", rec.Hash).
		Updates(map[string]any{
			"expires_at":       rec.ExpiresAt,
			"revoked":          rec.Revoked,
			"revoked_at":       rec.RevokedAt,
			"revoked_reason":   rec.RevokedReason,
			"revocation_grace": rec.RevocationGrace,
		})
	if res.Error != nil {
		return dbFailure("updating token", res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.NewFailure(domain.KindInfrastructure, domain.CodeDatabaseError,
			"token not stored")
	}
	return nil
}

func (s *GormTokenStore) PurgeTokens(ctx context.Context, now time.Time, retention time.Duration) (int, error) {
	cutoff := now.Add(-retention)
	res := s.db.WithContext(ctx).
		Where("(expires_at IS NOT NULL AND expires_at < ?) OR (revoked AND revoked_at < ?)", now, cutoff).
		Delete(&tokenRecord{})
	if res.Error != nil {
		return 0, dbFailure("purging tokens", res.Error)
	}
	return int(res.RowsAffected), nil
}

// Exec, Query, and Transact expose the generic storage contract for
// collaborators that need raw parameterized access.
func (s *GormTokenStore) Exec(ctx context.Context, query string, args ...any) error {
	if err := s.db.WithContext(ctx).Exec(query, args...).Error; err != nil {
		return dbFailure("exec", err)
	}
	return nil
}

func (s *GormTokenStore) Query(ctx context.Context, dest any, query string, args ...any) error {
	if err := s.db.WithContext(ctx).Raw(query, args...).Scan(dest).Error; err != nil {
		return dbFailure("query", err)
	}
	return nil
}

func (s *GormTokenStore) Transact(ctx context.Context, fn func(tx DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormTokenStore{db: tx, cipher: s.cipher})
	})
}

func (s *GormTokenStore) sealField(value string) (string, error) {
	if s.cipher == nil || value == "" {
		return value, nil
	}
	sealed, err := s.cipher.Encrypt([]byte(value))
	if err != nil {
		return "", err
	}
	return string(sealed), nil
}

func (s *GormTokenStore) openField(value string) (string, error) {
	if s.cipher == nil || value == "" {
		return value, nil
	}
	plain, err := s.cipher.Decrypt([]byte(value))
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func (s *GormTokenStore) toRecord(meta domain.TokenMetadata) (tokenRecord, error) {
	user, err := s.sealField(string(meta.UserID))
	if err != nil {
		return tokenRecord{}, err
	}
	reason, err := s.sealField(meta.RevokedReason)
	if err != nil {
		return tokenRecord{}, err
	}
	return tokenRecord{
		Hash:            meta.Hashed.Hash,
		Algorithm:       meta.Hashed.Algorithm,
		Salt:            meta.Hashed.Salt,
		UserID:          user,
		CreatedAt:       meta.CreatedAt,
		ExpiresAt:       meta.ExpiresAt,
		Revoked:         meta.Revoked,
		RevokedAt:       meta.RevokedAt,
		RevokedReason:   reason,
		RevocationGrace: int64(meta.RevocationGrace),
	}, nil
}

func (s *GormTokenStore) fromRecord(rec tokenRecord) (domain.TokenMetadata, error) {
	user, err := s.openField(rec.UserID)
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	reason, err := s.openField(rec.RevokedReason)
	if err != nil {
		return domain.TokenMetadata{}, err
	}
	return domain.TokenMetadata{
		Hashed: domain.HashedToken{
			Algorithm: rec.Algorithm,
			Hash:      rec.Hash,
			Salt:      rec.Salt,
		},
		UserID:          domain.UserID(user),
		CreatedAt:       rec.CreatedAt,
		ExpiresAt:       rec.ExpiresAt,
		Revoked:         rec.Revoked,
		RevokedAt:       rec.RevokedAt,
		RevokedReason:   reason,
		RevocationGrace: time.Duration(rec.RevocationGrace),
	}, nil
}

func dbFailure(op string, err error) error {
	return domain.WrapFailure(domain.KindInfrastructure, domain.CodeDatabaseError, op, err)
}

func isUniqueConstraintError(err error) bool {
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return true
		}
		s := err.Error()
		return strings.Contains(s, "duplicate key") || strings.Contains(s, "unique constraint")
	}
	return false
}

var (
	_ domain.TokenStore = (*GormTokenStore)(nil)
	_ DB                = (*GormTokenStore)(nil)
)
