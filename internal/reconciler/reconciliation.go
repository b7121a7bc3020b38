// Package reconciler coordinates the statement reconciliation workflow.
//
// A Service is bound to a Store and hands out per-owner Sessions. A Session
// imports statements into the owner's staging batch, lets a reviewer move
// staged records through the review states and finally commits the batch,
// replacing the owner's ledger in one transaction.
//
// Example usage:
//
//	svc, err := reconciler.NewService(st, reconciler.DefaultConfig())
//	session := svc.Session("owner-1")
//	result, err := session.ImportStatement(ctx, "statement.csv", reconciler.ImportOptions{})
//	summary, err := session.CommitImport(ctx)
package reconciler

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"statement-reconciliation-service/internal/matcher"
	"statement-reconciliation-service/internal/parsers"
	"statement-reconciliation-service/pkg/errors"
	"statement-reconciliation-service/pkg/logger"
)

// SuggestConfig controls the built-in category suggester
type SuggestConfig struct {
	Enabled       bool    `mapstructure:"enabled"`
	MinSimilarity float64 `mapstructure:"min_similarity"`
}

// Config holds configuration options for the reconciliation service
type Config struct {
	Parser   *parsers.ParseConfig
	Matching *matcher.MatchingConfig
	Dedup    *matcher.DedupConfig
	Suggest  SuggestConfig
}

// DefaultConfig returns a default configuration for the reconciliation service
func DefaultConfig() *Config {
	return &Config{
		Parser:   parsers.DefaultParseConfig(),
		Matching: matcher.DefaultMatchingConfig(),
		Dedup:    matcher.DefaultDedupConfig(),
		Suggest: SuggestConfig{
			Enabled:       true,
			MinSimilarity: 0.6,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Parser == nil || c.Matching == nil || c.Dedup == nil {
		return fmt.Errorf("parser, matching and dedup configuration are required")
	}
	if err := c.Parser.Validate(); err != nil {
		return fmt.Errorf("parser: %w", err)
	}
	if err := c.Matching.Validate(); err != nil {
		return fmt.Errorf("matching: %w", err)
	}
	if err := c.Dedup.Validate(); err != nil {
		return fmt.Errorf("dedup: %w", err)
	}
	if c.Suggest.MinSimilarity < 0 || c.Suggest.MinSimilarity > 1 {
		return fmt.Errorf("suggest min similarity must be in [0, 1], got %f", c.Suggest.MinSimilarity)
	}
	return nil
}

// Service holds the shared, owner-independent parts of the workflow
type Service struct {
	store           Store
	config          *Config
	statementParser *parsers.StatementParser
	ledgerParser    *parsers.LedgerParser
	detector        *matcher.DuplicateDetector
	suggester       matcher.CategorySuggester
	locks           *lockset
	logger          logger.Logger

	newID func() string
	now   func() time.Time
}

// Option customizes a Service
type Option func(*Service)

// WithSuggester replaces the ledger-history suggester
func WithSuggester(s matcher.CategorySuggester) Option {
	return func(svc *Service) { svc.suggester = s }
}

// WithClock overrides the time source used for staged timestamps
func WithClock(now func() time.Time) Option {
	return func(svc *Service) { svc.now = now }
}

// WithIDGenerator overrides the id source for new rows
func WithIDGenerator(newID func() string) Option {
	return func(svc *Service) { svc.newID = newID }
}

// NewService creates a reconciliation service over st
func NewService(st Store, config *Config, opts ...Option) (*Service, error) {
	if st == nil {
		return nil, errors.ValidationError(errors.CodeMissingField, "store", nil, nil).
			WithSuggestion("provide an opened store")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "reconciler", nil, err)
	}

	statementParser, err := parsers.NewStatementParser(config.Parser)
	if err != nil {
		return nil, err
	}
	ledgerParser, err := parsers.NewLedgerParser(config.Parser)
	if err != nil {
		return nil, err
	}
	detector, err := matcher.NewDuplicateDetector(config.Dedup)
	if err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "dedup", nil, err)
	}

	svc := &Service{
		store:           st,
		config:          config,
		statementParser: statementParser,
		ledgerParser:    ledgerParser,
		detector:        detector,
		locks:           newLockset(),
		logger:          logger.GetGlobalLogger().WithComponent("reconciler"),
		newID:           uuid.NewString,
		now:             func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// GetConfiguration returns the current configuration
func (s *Service) GetConfiguration() *Config {
	return s.config
}

// Session returns a handle scoped to one owner's ledger and staging batch.
// Sessions are cheap; operations on the same owner are serialized.
func (s *Service) Session(ownerID string) *Session {
	return &Session{
		svc:     s,
		ownerID: ownerID,
		logger:  s.logger.WithField("owner", ownerID),
	}
}

// Session runs reconciliation operations for a single owner
type Session struct {
	svc     *Service
	ownerID string
	logger  logger.Logger
}

// OwnerID returns the owner this session is bound to
func (s *Session) OwnerID() string {
	return s.ownerID
}

func (s *Session) checkOwner() error {
	if s.ownerID == "" {
		return errors.ValidationError(errors.CodeMissingField, "owner", s.ownerID, nil).
			WithSuggestion("set an owner id with --owner or RECONCILER_OWNER")
	}
	return nil
}

func (s *Session) lock() (func(), error) {
	if err := s.checkOwner(); err != nil {
		return nil, err
	}
	return s.svc.locks.Lock(s.ownerID), nil
}
