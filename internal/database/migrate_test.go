package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fondfamilial/backend/internal/models"
)

// The mouvements CHECK constraint must stay in lockstep with the movement
// type enum; a type missing here would be accepted by the API and rejected
// by the database.
func TestSchemaCoversEveryMovementType(t *testing.T) {
	schema, err := migrationsFS.ReadFile("migrations/000001_init_schema.up.sql")
	require.NoError(t, err)

	for _, mt := range models.AllMovementTypes {
		assert.Contains(t, string(schema), "'"+string(mt)+"'", "type %s missing from schema", mt)
	}
}
