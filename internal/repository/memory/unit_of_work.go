package memory

import (
	"context"
	"fmt"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/contract"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/repository/unitofwork"
)

// RepositoryFactory backs the unit-of-work contract with process memory.
// It serves local runs without Postgres and the package tests.
type RepositoryFactory struct {
	conversations *conversationTable
	catalog       *catalogTable

	// FailCommit makes every Commit fail, for exercising rollback paths.
	FailCommit error
}

var _ unitofwork.RepositoryFactory = &RepositoryFactory{}

func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{
		conversations: &conversationTable{},
		catalog:       &catalogTable{rows: map[string]entity.CatalogRecord{}},
	}
}

func (f *RepositoryFactory) NewUnitOfWork(ctx context.Context) unitofwork.UnitOfWork {
	return &UnitOfWork{factory: f}
}

type UnitOfWork struct {
	factory *RepositoryFactory
	staged  *[]entity.Conversation
}

func (u *UnitOfWork) Begin(ctx context.Context) error {
	if u.staged != nil {
		return fmt.Errorf("transaction already started")
	}
	u.staged = &[]entity.Conversation{}
	return nil
}

func (u *UnitOfWork) Commit() error {
	if u.staged == nil {
		return fmt.Errorf("no transaction to commit")
	}
	staged := *u.staged
	u.staged = nil
	if u.factory.FailCommit != nil {
		return u.factory.FailCommit
	}
	u.factory.conversations.insert(staged...)
	return nil
}

func (u *UnitOfWork) Rollback() error {
	if u.staged == nil {
		return fmt.Errorf("no transaction to rollback")
	}
	u.staged = nil
	return nil
}

func (u *UnitOfWork) ConversationRepository() contract.ConversationRepository {
	return &ConversationRepository{table: u.factory.conversations, staged: u.staged}
}

func (u *UnitOfWork) CatalogRecordRepository() contract.CatalogRecordRepository {
	return &CatalogRecordRepository{table: u.factory.catalog}
}
