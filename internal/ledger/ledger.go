// Package ledger is the durable record of every investment attempt. All
// status writes are compare-and-set on the previous status, and the
// per-user-per-pool in-flight slot is a unique index released by the same
// statement that writes a terminal status.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/gbsoe/FiLotV2-sub001/internal/apperrors"
	"github.com/gbsoe/FiLotV2-sub001/internal/models"
)

var (
	ErrNotFound          = errors.New("attempt not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrStaleStatus       = errors.New("attempt status changed concurrently")
)

// NewAttempt carries the request fields known before any network read.
type NewAttempt struct {
	UserID          string
	SessionID       string
	WalletAddress   string
	PoolID          string
	RequestedAmount decimal.Decimal
	SlippageBps     uint16
}

// Quote is the priced split recorded when an attempt is validated.
type Quote struct {
	TokenAMint       string
	TokenBMint       string
	TokenAAmount     uint64
	TokenBAmount     uint64
	ExpectedLPTokens uint64
	MinLPTokens      uint64
	SlippageBps      uint16
	FeeBps           uint16
	QuotedAt         time.Time
}

// Update holds the optional columns written alongside a status change.
type Update struct {
	Quote       *Quote
	SignedTx    string
	TxSignature string
	Failure     error
}

type Ledger struct {
	db     *gorm.DB
	logger *logrus.Logger
	now    func() time.Time
}

func New(db *gorm.DB, logger *logrus.Logger) *Ledger {
	if logger == nil {
		logger = logrus.New()
	}
	return &Ledger{db: db, logger: logger, now: func() time.Time { return time.Now().UTC() }}
}

// Create inserts an attempt at status created, claiming the in-flight slot
// for (user_id, pool_id). A held slot yields AlreadyInProgress carrying the
// id of the attempt that holds it.
func (l *Ledger) Create(ctx context.Context, in NewAttempt) (*models.InvestmentAttempt, error) {
	now := l.now()
	key := models.InflightKey(in.UserID, in.PoolID)
	a := &models.InvestmentAttempt{
		AttemptID:       uuid.New().String(),
		UserID:          in.UserID,
		SessionID:       in.SessionID,
		WalletAddress:   in.WalletAddress,
		PoolID:          in.PoolID,
		RequestedAmount: in.RequestedAmount,
		SlippageBps:     in.SlippageBps,
		Status:          models.StatusCreated,
		InflightKey:     &key,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(a).Error; err != nil {
			return err
		}
		return tx.Create(&models.AttemptTransition{
			AttemptID: a.AttemptID,
			ToStatus:  models.StatusCreated,
			At:        now,
		}).Error
	})
	if err != nil {
		if isUniqueViolation(err) {
			e := apperrors.Newf(apperrors.KindAlreadyInProgress,
				"an attempt for pool %s is already in progress", in.PoolID)
			if existing, ferr := l.FindInFlight(ctx, in.UserID, in.PoolID); ferr == nil {
				e.WithDetails(map[string]interface{}{"attempt_id": existing.AttemptID})
			}
			return nil, e
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	l.logger.WithFields(logrus.Fields{
		"attempt_id": a.AttemptID,
		"user_id":    a.UserID,
		"pool_id":    a.PoolID,
	}).Info("Attempt created")
	return a, nil
}

// Transition moves attemptID from `from` to `to` and writes the update's
// columns in the same statement. It fails with ErrIllegalTransition for an
// edge outside the state machine and ErrStaleStatus when the stored status
// is no longer `from`.
func (l *Ledger) Transition(
	ctx context.Context,
	attemptID string,
	from, to models.AttemptStatus,
	u Update,
) (*models.InvestmentAttempt, error) {

	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
	}

	now := l.now()
	var out models.InvestmentAttempt

	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var cur models.InvestmentAttempt
		if err := tx.Where("attempt_id = ?", attemptID).First(&cur).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if cur.Status != from {
			return fmt.Errorf("%w: expected %s, found %s", ErrStaleStatus, from, cur.Status)
		}

		updates, err := columnsFor(&cur, to, u, now)
		if err != nil {
			return err
		}

		res := tx.Model(&models.InvestmentAttempt{}).
			Where("attempt_id = ? AND status = ?", attemptID, from).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: lost race on %s", ErrStaleStatus, from)
		}

		var code *string
		if c, ok := updates["failure_code"].(string); ok {
			code = &c
		}
		if err := tx.Create(&models.AttemptTransition{
			AttemptID:   attemptID,
			FromStatus:  from,
			ToStatus:    to,
			FailureCode: code,
			At:          now,
		}).Error; err != nil {
			return err
		}

		return tx.Where("attempt_id = ?", attemptID).First(&out).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrStaleStatus) || errors.Is(err, ErrIllegalTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("transition %s %s -> %s: %w", attemptID, from, to, err)
	}

	l.logger.WithFields(logrus.Fields{
		"attempt_id": attemptID,
		"from":       from,
		"to":         to,
	}).Debug("Attempt transitioned")
	return &out, nil
}

// columnsFor validates the update against the target status and returns the
// column map for the CAS UPDATE.
func columnsFor(cur *models.InvestmentAttempt, to models.AttemptStatus, u Update, now time.Time) (map[string]interface{}, error) {
	cols := map[string]interface{}{
		"status":     to,
		"updated_at": now,
	}

	if u.Quote != nil {
		q := u.Quote
		cols["token_a_mint"] = q.TokenAMint
		cols["token_b_mint"] = q.TokenBMint
		cols["token_a_amount"] = q.TokenAAmount
		cols["token_b_amount"] = q.TokenBAmount
		cols["expected_lp_tokens"] = q.ExpectedLPTokens
		cols["min_lp_tokens"] = q.MinLPTokens
		cols["slippage_bps"] = q.SlippageBps
		cols["fee_bps"] = q.FeeBps
		cols["quoted_at"] = q.QuotedAt
	}

	minLP := cur.MinLPTokens
	if u.Quote != nil {
		minLP = u.Quote.MinLPTokens
	}
	if to == models.StatusBuilt && minLP == 0 {
		return nil, fmt.Errorf("%w: built requires min_lp_tokens > 0", ErrIllegalTransition)
	}

	switch {
	case to == models.StatusSigned:
		if u.SignedTx == "" {
			return nil, fmt.Errorf("%w: signed requires the signed transaction", ErrIllegalTransition)
		}
		cols["signed_tx"] = u.SignedTx
	case u.SignedTx != "":
		return nil, fmt.Errorf("%w: signed transaction only recorded at signed", ErrIllegalTransition)
	}

	switch {
	case to == models.StatusSubmitted:
		if u.TxSignature == "" {
			return nil, fmt.Errorf("%w: submitted requires a signature", ErrIllegalTransition)
		}
		cols["tx_signature"] = u.TxSignature
	case u.TxSignature != "":
		return nil, fmt.Errorf("%w: signature only recorded at submitted", ErrIllegalTransition)
	}

	if u.Failure != nil {
		code, detail := describeFailure(u.Failure)
		cols["failure_code"] = code
		cols["failure_detail"] = detail
	}

	if to.IsTerminal() {
		cols["inflight_key"] = gorm.Expr("NULL")
	}
	return cols, nil
}

// describeFailure turns an error into the persisted failure code and a JSON
// detail document.
func describeFailure(err error) (string, string) {
	code := string(apperrors.KindOf(err))
	if code == "" {
		code = "internal"
	}

	detail := map[string]interface{}{"message": err.Error()}
	if e, ok := apperrors.As(err); ok {
		for k, v := range e.Details {
			detail[k] = v
		}
	}
	b, jerr := json.Marshal(detail)
	if jerr != nil {
		return code, err.Error()
	}
	return code, string(b)
}

// Get returns one attempt by id.
func (l *Ledger) Get(ctx context.Context, attemptID string) (*models.InvestmentAttempt, error) {
	var a models.InvestmentAttempt
	err := l.db.WithContext(ctx).Where("attempt_id = ?", attemptID).First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}
	return &a, nil
}

// FindInFlight returns the non-terminal attempt holding the slot for
// (userID, poolID).
func (l *Ledger) FindInFlight(ctx context.Context, userID, poolID string) (*models.InvestmentAttempt, error) {
	var a models.InvestmentAttempt
	err := l.db.WithContext(ctx).
		Where("inflight_key = ?", models.InflightKey(userID, poolID)).
		First(&a).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find in-flight attempt: %w", err)
	}
	return &a, nil
}

// ListInFlight returns every non-terminal attempt, oldest first.
func (l *Ledger) ListInFlight(ctx context.Context) ([]models.InvestmentAttempt, error) {
	var out []models.InvestmentAttempt
	err := l.db.WithContext(ctx).
		Where("status IN ?", models.NonTerminalStatuses()).
		Order("created_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list in-flight attempts: %w", err)
	}
	return out, nil
}

// ListByUser returns the most recent attempts of one user.
func (l *Ledger) ListByUser(ctx context.Context, userID string, limit int) ([]models.InvestmentAttempt, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []models.InvestmentAttempt
	err := l.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return out, nil
}

// History returns the audit trail of one attempt in write order.
func (l *Ledger) History(ctx context.Context, attemptID string) ([]models.AttemptTransition, error) {
	var out []models.AttemptTransition
	err := l.db.WithContext(ctx).
		Where("attempt_id = ?", attemptID).
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("attempt history: %w", err)
	}
	return out, nil
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "Duplicate entry")
}
