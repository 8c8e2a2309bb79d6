package mapper

import (
	"encoding/json"

	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/entity"
	"github.com/A2SIA-AA/Chatbot-AMDIE-sub000/internal/model"

	"gorm.io/datatypes"
)

type ConversationMapper struct{}

func NewConversationMapper() *ConversationMapper {
	return &ConversationMapper{}
}

func (m *ConversationMapper) ToEntity(c *model.Conversation) *entity.Conversation {
	if c == nil {
		return nil
	}

	sources := []string{}
	if len(c.Sources) > 0 {
		// malformed JSON leaves the list empty rather than failing the read
		_ = json.Unmarshal(c.Sources, &sources)
	}

	return &entity.Conversation{
		Id:        c.Id,
		Username:  c.Username,
		Email:     c.Email,
		Question:  c.Question,
		Response:  c.Response,
		SessionId: c.SessionId,
		Sources:   sources,
		Timestamp: c.Timestamp,
	}
}

func (m *ConversationMapper) ToModel(c *entity.Conversation) *model.Conversation {
	if c == nil {
		return nil
	}

	sources := c.Sources
	if sources == nil {
		sources = []string{}
	}
	raw, _ := json.Marshal(sources)

	return &model.Conversation{
		Id:        c.Id,
		Username:  c.Username,
		Email:     c.Email,
		Question:  c.Question,
		Response:  c.Response,
		SessionId: c.SessionId,
		Sources:   datatypes.JSON(raw),
		Timestamp: c.Timestamp,
	}
}
