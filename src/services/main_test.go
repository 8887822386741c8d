package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/username/optionfolio/backend/src/database"
	"github.com/username/optionfolio/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")

	dir, err := os.MkdirTemp("", "optionfolio-services-test")
	if err != nil {
		panic(err)
	}
	database.InitDB(filepath.Join(dir, "test.db"))

	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}
