package database_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/rocketDuck/folivora/internal/database"
)

var dependencyColumns = []string{"id", "project_id", "package_id", "version", "update_id", "package_name"}

func TestDependencyRepository_ListByPackage(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := database.NewDependencyRepository(db)

	updateID := int64(42)
	mock.ExpectQuery("SELECT .+ FROM project_dependencies d").
		WithArgs(int64(7)).
		WillReturnRows(
			sqlmock.NewRows(dependencyColumns).
				AddRow(1, 10, 7, "1101.8.0", nil, "pmxbot").
				AddRow(2, 11, 7, "1101.7.0", updateID, "pmxbot"),
		)

	deps, err := repo.ListByPackage(context.Background(), 7)
	if err != nil {
		t.Fatalf("ListByPackage() error = %v", err)
	}
	if len(deps) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(deps))
	}
	if deps[0].UpdateAvailable() {
		t.Error("expected first dependency to have no update pointer")
	}
	if !deps[1].UpdateAvailable() || *deps[1].UpdateID != updateID {
		t.Errorf("expected second dependency update pointer %d, got %+v", updateID, deps[1].UpdateID)
	}
	if deps[0].DependencyString() != "pmxbot==1101.8.0" {
		t.Errorf("unexpected dependency string %q", deps[0].DependencyString())
	}

	expectationsMet(t, mock)
}

func TestDependencyRepository_SetUpdate(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := database.NewDependencyRepository(db)
	updateID := int64(42)

	mock.ExpectExec("UPDATE project_dependencies").
		WithArgs(int64(1), &updateID).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.SetUpdate(context.Background(), 1, &updateID); err != nil {
		t.Fatalf("SetUpdate() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestDependencyRepository_SetUpdate_Clear(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := database.NewDependencyRepository(db)

	// Clearing an already-nil pointer affects zero rows and is fine.
	mock.ExpectExec("UPDATE project_dependencies").
		WithArgs(int64(1), nil).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.SetUpdate(context.Background(), 1, nil); err != nil {
		t.Fatalf("SetUpdate(nil) error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestDependencyRepository_Delete(t *testing.T) {
	db, mock, cleanup := newMockDB(t)
	defer cleanup()

	repo := database.NewDependencyRepository(db)

	mock.ExpectExec("DELETE FROM project_dependencies").
		WithArgs(int64(1), int64(2)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	if err := repo.Delete(context.Background(), []int64{1, 2}); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestDependencyRepository_Delete_Empty(t *testing.T) {
	db, _, cleanup := newMockDB(t)
	defer cleanup()

	repo := database.NewDependencyRepository(db)

	if err := repo.Delete(context.Background(), nil); err != nil {
		t.Fatalf("Delete(nil) error = %v", err)
	}
}
