package uuid_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lllypuk/eventra/internal/domain/uuid"
)

func TestNewUUID(t *testing.T) {
	// Act
	id := uuid.NewUUID()

	// Assert
	assert.NotEmpty(t, id)
	assert.False(t, id.IsZero())
	assert.Len(t, id.String(), 36)
}

func TestNewUUID_Uniqueness(t *testing.T) {
	// Act
	id1 := uuid.NewUUID()
	id2 := uuid.NewUUID()

	// Assert
	assert.NotEqual(t, id1, id2, "generated UUIDs should be unique")
}

func TestParseUUID_ValidUUID(t *testing.T) {
	// Arrange
	validUUID := "550e8400-e29b-41d4-a716-446655440000"

	// Act
	id, err := uuid.ParseUUID(validUUID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, validUUID, id.String())
	assert.False(t, id.IsZero())
}

func TestParseUUID_InvalidUUID(t *testing.T) {
	testCases := []struct {
		name  string
		input string
	}{
		{"empty string", ""},
		{"invalid format", "not-a-uuid"},
		{"truncated", "550e8400-e29b-41d4"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			_, err := uuid.ParseUUID(tc.input)

			// Assert
			require.Error(t, err)
		})
	}
}

func TestMustParseUUID_PanicsOnInvalid(t *testing.T) {
	assert.Panics(t, func() {
		uuid.MustParseUUID("not-a-uuid")
	})
}
