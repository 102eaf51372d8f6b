package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type presencePayload struct {
	Status string `json:"status" validate:"required,oneof=online away busy"`
}

type directMessage struct {
	RecipientID string `json:"recipientId" validate:"required"`
	Message     string `json:"message" validate:"required,max=8"`
}

func TestValidate(t *testing.T) {
	v := New()

	assert.NoError(t, v.Validate(presencePayload{Status: "away"}))
	assert.EqualError(t, v.Validate(presencePayload{Status: "asleep"}),
		"status must be one of [online away busy]")
	assert.EqualError(t, v.Validate(&directMessage{}),
		"recipientId is required; message is required")
	assert.EqualError(t, v.Validate(directMessage{RecipientID: "u1", Message: "far too long"}),
		"message must not exceed 8 characters")
}
