package portfolio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"convictionexecutor/src/database"
	"convictionexecutor/src/model"
)

const quantityPrecision = 10

var (
	ErrInvalidTrade      = errors.New("invalid trade request")
	ErrNothingToTrade    = errors.New("nothing to trade")
	ErrPortfolioNotFound = errors.New("portfolio not found")
)

// TradeRequest asks for a paper fill. PositionSize is a fraction of total portfolio value.
type TradeRequest struct {
	PortfolioID  uint
	ExecutionID  string
	Signal       model.TradeSignal
	PositionSize float64
	Price        float64
}

// Service executes paper trades against the portfolio balances.
type Service struct {
	db     *gorm.DB
	logger *logrus.Entry
	now    func() time.Time
}

func NewService(logger *logrus.Entry) *Service {
	return NewServiceWithDB(database.MainDB, logger)
}

func NewServiceWithDB(db *gorm.DB, logger *logrus.Entry) *Service {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}

	return &Service{
		db:     db,
		logger: logger.WithField("component", "portfolio"),
		now:    time.Now,
	}
}

// ExecuteTrade fills the request at req.Price. BUY notional is capped by cash, SELL quantity by holdings.
func (s *Service) ExecuteTrade(ctx context.Context, req TradeRequest) (*model.Trade, error) {
	if req.Signal != model.TradeSignalBuy && req.Signal != model.TradeSignalSell {
		return nil, fmt.Errorf("%w: signal %q", ErrInvalidTrade, req.Signal)
	}
	if req.PositionSize <= 0 || req.PositionSize > 1 {
		return nil, fmt.Errorf("%w: position size %.6f outside (0,1]", ErrInvalidTrade, req.PositionSize)
	}
	if req.Price <= 0 {
		return nil, fmt.Errorf("%w: price %.8f", ErrInvalidTrade, req.Price)
	}

	var trade *model.Trade
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p model.Portfolio
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, req.PortfolioID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("%w: %d", ErrPortfolioNotFound, req.PortfolioID)
		}
		if err != nil {
			return fmt.Errorf("load portfolio: %w", err)
		}

		price := decimal.NewFromFloat(req.Price)
		total := p.CashBalance.Add(p.Holdings.Mul(price))
		notional := total.Mul(decimal.NewFromFloat(req.PositionSize))

		var qty decimal.Decimal
		switch req.Signal {
		case model.TradeSignalBuy:
			notional = decimal.Min(notional, p.CashBalance)
			qty = notional.DivRound(price, quantityPrecision)
			p.CashBalance = p.CashBalance.Sub(notional)
			p.Holdings = p.Holdings.Add(qty)
		case model.TradeSignalSell:
			qty = decimal.Min(notional.DivRound(price, quantityPrecision), p.Holdings)
			notional = qty.Mul(price)
			p.CashBalance = p.CashBalance.Add(notional)
			p.Holdings = p.Holdings.Sub(qty)
		}
		if !qty.IsPositive() {
			return ErrNothingToTrade
		}

		if err := tx.Model(&model.Portfolio{}).
			Where("id = ?", p.ID).
			Updates(map[string]interface{}{
				"cash_balance": p.CashBalance,
				"holdings":     p.Holdings,
			}).Error; err != nil {
			return fmt.Errorf("update balances: %w", err)
		}

		trade = &model.Trade{
			PortfolioID:  p.ID,
			ExecutionID:  req.ExecutionID,
			Side:         string(req.Signal),
			PositionSize: req.PositionSize,
			Price:        price,
			Quantity:     qty,
			Notional:     notional,
			ExecutedAt:   s.now().UTC(),
		}
		if err := tx.Create(trade).Error; err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		return nil
	})
	if err != nil {
		s.logger.WithFields(logrus.Fields{
			"portfolio_id": req.PortfolioID,
			"execution_id": req.ExecutionID,
			"signal":       req.Signal,
		}).WithError(err).Error("paper trade failed")

		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"portfolio_id": trade.PortfolioID,
		"execution_id": trade.ExecutionID,
		"side":         trade.Side,
		"quantity":     trade.Quantity.String(),
		"notional":     trade.Notional.StringFixed(2),
	}).Info("paper trade executed")

	return trade, nil
}

// GetPosition returns the invested fraction (holdings value / total value) at price. An empty portfolio is 0.
func (s *Service) GetPosition(ctx context.Context, portfolioID uint, price float64) (float64, error) {
	var p model.Portfolio
	err := s.db.WithContext(ctx).First(&p, portfolioID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: %d", ErrPortfolioNotFound, portfolioID)
	}
	if err != nil {
		return 0, fmt.Errorf("load portfolio: %w", err)
	}

	return Position(p.CashBalance, p.Holdings, decimal.NewFromFloat(price)), nil
}

// Position is holdings*price / (cash + holdings*price), clamped to [0,1].
func Position(cash, holdings, price decimal.Decimal) float64 {
	invested := holdings.Mul(price)
	total := cash.Add(invested)
	if !total.IsPositive() || !invested.IsPositive() {
		return 0
	}

	f, _ := invested.Div(total).Float64()
	if f > 1 {
		return 1
	}
	return f
}
