package identity

import (
	"context"
	"database/sql"
	"errors"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/Additional-Code/procure/internal/database"
	"github.com/Additional-Code/procure/internal/entity"
)

// ErrUnknownActor is returned when an actor id does not resolve to a user.
var ErrUnknownActor = errors.New("unknown actor")

// Resolver validates that an actor id refers to a known identity.
type Resolver interface {
	Resolve(ctx context.Context, actorID int64) (*entity.User, error)
}

// Module provides the user-backed resolver to Fx.
var Module = fx.Provide(
	fx.Annotate(NewStore, fx.As(new(Resolver))),
)

// Store resolves actors against the users table.
type Store struct {
	reader *bun.DB
}

// NewStore wires a Store backed by the read connection.
func NewStore(conns *database.Connections) *Store {
	return &Store{reader: conns.Reader}
}

// Resolve loads the user for an actor id.
func (s *Store) Resolve(ctx context.Context, actorID int64) (*entity.User, error) {
	user := new(entity.User)
	err := s.reader.NewSelect().Model(user).Where("id = ?", actorID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUnknownActor
	}
	if err != nil {
		return nil, err
	}
	return user, nil
}
