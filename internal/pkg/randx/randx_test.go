package randx

import (
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
)

func TestConnectionID(t *testing.T) {
	a, b := ConnectionID(), ConnectionID()
	assert.NotEqual(t, a, b)

	_, err := ulid.Parse(a)
	assert.NoError(t, err)
}

func TestIsValidUUID(t *testing.T) {
	assert.True(t, IsValidUUID(uuid.NewString()))
	assert.False(t, IsValidUUID(""))
	assert.False(t, IsValidUUID("not-a-uuid"))
	assert.False(t, IsValidUUID("{"+uuid.NewString()+"}"))
	assert.False(t, IsValidUUID("urn:uuid:"+uuid.NewString()))
}
