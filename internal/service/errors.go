package service

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/annelo/tileworld/internal/block"
	"github.com/annelo/tileworld/internal/gamedata"
	"github.com/annelo/tileworld/internal/gamestate"
	"github.com/annelo/tileworld/internal/inventory"
	"github.com/annelo/tileworld/internal/playermanager"
	"github.com/annelo/tileworld/internal/world"
)

// invalidArgument возвращает InvalidArgument с описанием нарушенного поля
func invalidArgument(field, description string) error {
	st := status.New(codes.InvalidArgument, description)
	detailed, err := st.WithDetails(&errdetails.BadRequest{
		FieldViolations: []*errdetails.BadRequest_FieldViolation{
			{Field: field, Description: description},
		},
	})
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

// codeOf сопоставляет ошибку мира коду gRPC
func codeOf(err error) codes.Code {
	if st, ok := status.FromError(err); ok && st.Code() != codes.Unknown {
		return st.Code()
	}
	switch {
	case errors.Is(err, context.Canceled):
		return codes.Canceled
	case errors.Is(err, context.DeadlineExceeded):
		return codes.DeadlineExceeded
	case errors.Is(err, playermanager.ErrPlayerNotFound),
		errors.Is(err, block.ErrTileEntityMissing):
		return codes.NotFound
	case errors.Is(err, playermanager.ErrPlayerExists),
		errors.Is(err, block.ErrTileEntityExists):
		return codes.AlreadyExists
	case errors.Is(err, inventory.ErrBadSlot),
		errors.Is(err, block.ErrUnknownAction),
		errors.Is(err, block.ErrNotInteractive),
		errors.Is(err, world.ErrEmptyMessage),
		errors.Is(err, world.ErrUnknownMobName),
		errors.Is(err, gamedata.ErrUnknownItem),
		errors.Is(err, gamedata.ErrUnknownRecipe),
		errors.Is(err, gamedata.ErrUnknownMob):
		return codes.InvalidArgument
	case errors.Is(err, world.ErrPlayerDead),
		errors.Is(err, world.ErrPlayerAlive),
		errors.Is(err, world.ErrOutOfReach),
		errors.Is(err, world.ErrWrongTool),
		errors.Is(err, world.ErrNothingToHit),
		errors.Is(err, world.ErrCannotPlace),
		errors.Is(err, world.ErrNoArrows),
		errors.Is(err, world.ErrNoBed),
		errors.Is(err, gamestate.ErrNotNight),
		errors.Is(err, inventory.ErrNeedWorkbench),
		errors.Is(err, inventory.ErrMissingIngredients),
		errors.Is(err, inventory.ErrNotEnough),
		errors.Is(err, inventory.ErrNoSpace),
		errors.Is(err, block.ErrInteractionFailed):
		return codes.FailedPrecondition
	}
	return codes.Internal
}

// toStatus превращает ошибку мира в статус gRPC
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	return status.Error(codeOf(err), err.Error())
}

// errorMessage превращает ошибку действия в сообщение клиенту
func errorMessage(seq uint64, err error) *ServerMessage {
	msg := err.Error()
	if st, ok := status.FromError(err); ok {
		msg = st.Message()
	}
	return &ServerMessage{Error: &ErrorMessage{Seq: seq, Code: codeOf(err).String(), Message: msg}}
}
