package fidelity

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/joao-fontenele/parashop/internal/domain"
	"github.com/joao-fontenele/parashop/internal/store"
)

var tracer = otel.Tracer("parashop/fidelity")

type Transactor interface {
	InTx(ctx context.Context, fn func(tx LedgerTx) error) error
}

type Reader interface {
	GetUser(ctx context.Context, id string) (*domain.User, error)
	History(ctx context.Context, userID string, page, limit int) ([]domain.HistoryEntry, int, error)
	ListBalances(ctx context.Context, search string, page, limit int) ([]domain.User, int, error)
}

type Service struct {
	txs     Transactor
	reader  Reader
	metrics *Metrics
	logger  *slog.Logger
}

func NewService(txs Transactor, reader Reader, metrics *Metrics, logger *slog.Logger) *Service {
	return &Service{txs: txs, reader: reader, metrics: metrics, logger: logger}
}

type AdjustResult struct {
	Entry   *domain.HistoryEntry `json:"history"`
	Balance int64                `json:"fidelityPoints"`
}

func (s *Service) Adjust(ctx context.Context, adj Adjustment, actor domain.Actor) (*AdjustResult, error) {
	ctx, span := tracer.Start(ctx, "fidelity.Adjust", trace.WithAttributes(
		attribute.String("user.id", adj.UserID),
		attribute.Int64("fidelity.points", adj.Points),
	))
	defer span.End()

	var result AdjustResult
	err := s.txs.InTx(ctx, func(tx LedgerTx) error {
		entry, balance, err := Adjust(ctx, tx, adj, actor.UserID)
		if err != nil {
			return err
		}
		result = AdjustResult{Entry: entry, Balance: balance}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.metrics.RecordAdjustment(ctx, adj.Points)
	s.logger.Info("fidelity points adjusted",
		"user_id", adj.UserID, "points", adj.Points, "balance", result.Balance, "actor_id", actor.UserID)
	return &result, nil
}

type Statement struct {
	User       *domain.User          `json:"user"`
	History    []domain.HistoryEntry `json:"history"`
	Pagination domain.Pagination     `json:"pagination"`
}

// Statement returns a user's balance and history. Clients may only read their
// own; admins may read anyone's.
func (s *Service) Statement(ctx context.Context, userID string, page, limit int, actor domain.Actor) (*Statement, error) {
	if actor.UserID != userID && !actor.HasRole(domain.RoleAdmin) {
		return nil, domain.ErrForbidden
	}

	user, err := s.reader.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}

	history, total, err := s.reader.History(ctx, userID, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	return &Statement{User: user, History: history, Pagination: store.Paginate(total, page, limit)}, nil
}

type Balances struct {
	Users      []domain.User     `json:"users"`
	Pagination domain.Pagination `json:"pagination"`
}

func (s *Service) Balances(ctx context.Context, search string, page, limit int) (*Balances, error) {
	users, total, err := s.reader.ListBalances(ctx, search, page, limit)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	return &Balances{Users: users, Pagination: store.Paginate(total, page, limit)}, nil
}
