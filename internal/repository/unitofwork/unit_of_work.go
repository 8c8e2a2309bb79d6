package unitofwork

import (
	"context"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ConversationRepository() contract.ConversationRepository
	CatalogRecordRepository() contract.CatalogRecordRepository
}
