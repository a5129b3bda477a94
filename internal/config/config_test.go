package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	t.Run("Should apply defaults when nothing is set", func(t *testing.T) {
		c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)

		assert.Equal(t, 4, c.Layout.HeaderRowIndex)
		assert.Equal(t, 5, c.Layout.SubHeaderRowIndex)
		assert.Equal(t, 6, c.Layout.DataStartIndex)
		assert.Equal(t, 1, c.ContactUpdateWorkers)
		assert.Equal(t, "sqlite://./dcpinventory.db", c.Database.URL)
		assert.Equal(t, ColumnOptions{SchoolID: "SCHOOL ID", Name: "SCHOOL", Division: "DIVISION", District: "DISTRICT"}, c.Columns)
	})

	t.Run("Should read overrides from env file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := "DCP_API_URL=https://dcp.example.org\nHEADER_ROW_INDEX=0\nSUB_HEADER_ROW_INDEX=1\nDATA_START_INDEX=2\n"
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
		t.Cleanup(func() {
			for _, k := range []string{"DCP_API_URL", "HEADER_ROW_INDEX", "SUB_HEADER_ROW_INDEX", "DATA_START_INDEX"} {
				os.Unsetenv(k)
			}
		})

		c, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "https://dcp.example.org", c.API.BaseURL)
		assert.Equal(t, 0, c.Layout.HeaderRowIndex)
		assert.Equal(t, 2, c.Layout.DataStartIndex)
	})

	t.Run("Should reject data rows starting inside the header", func(t *testing.T) {
		t.Setenv("DATA_START_INDEX", "5")

		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATA_START_INDEX")
	})

	t.Run("Should read renamed school columns", func(t *testing.T) {
		t.Setenv("DIVISION_COLUMN", "SDO")
		c, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.NoError(t, err)
		assert.Equal(t, "SDO", c.Columns.Division)
		assert.Equal(t, "DISTRICT", c.Columns.District)
	})

	t.Run("Should reject zero workers", func(t *testing.T) {
		t.Setenv("CONTACT_UPDATE_WORKERS", "0")

		_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
		require.Error(t, err)
	})
}
