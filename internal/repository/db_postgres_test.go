package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm/logger"
)

func TestWithSearchPath(t *testing.T) {
	tests := []struct {
		dsn, schema, want string
	}{
		{"host=localhost dbname=bhav", "bhav", "host=localhost dbname=bhav search_path=bhav,public"},
		{"postgres://u:p@localhost/bhav", "bhav", "postgres://u:p@localhost/bhav?search_path=bhav,public"},
		{"postgres://u:p@localhost/bhav?sslmode=disable", "bhav", "postgres://u:p@localhost/bhav?sslmode=disable&search_path=bhav,public"},
		{"host=localhost search_path=other", "bhav", "host=localhost search_path=other"},
		{"host=localhost", "", "host=localhost"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, withSearchPath(tt.dsn, tt.schema))
	}
}

func TestGormLogLevel(t *testing.T) {
	assert.Equal(t, logger.Silent, gormLogLevel("silent"))
	assert.Equal(t, logger.Info, gormLogLevel("info"))
	assert.Equal(t, logger.Warn, gormLogLevel(""))
}
