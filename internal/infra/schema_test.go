package infra

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
)

func TestMigrate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS profiles")).
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	if err := Migrate(context.Background(), mock); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("permission denied"))
	if err := Migrate(context.Background(), mock); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
