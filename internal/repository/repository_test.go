package repository

import (
	"context"
	"errors"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/marketplace/internal/config"
	"github.com/timmy/marketplace/internal/domain"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func setupSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "repo.db"),
		AutoMigrate: true,
		LogLevel:    "silent",
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

func TestImportJobGetByIDNotFoundPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewImportJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "import_jobs"`)).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByID(context.Background(), "missing")
	assert.True(t, domain.IsKind(err, domain.ErrJobNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestImportJobGetByIDQueryErrorPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewImportJobRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "import_jobs"`)).
		WillReturnError(errors.New("connection reset"))

	_, err := repo.GetByID(context.Background(), "abc")
	require.Error(t, err)
	assert.False(t, domain.IsKind(err, domain.ErrJobNotFound))
	assert.Contains(t, err.Error(), "connection reset")
}

func TestImportJobFinalizeNoRowsPostgres(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewImportJobRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "import_jobs" SET`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	job := &domain.ImportJob{ID: "done", Status: domain.JobStatusCompleted}
	err := repo.Finalize(context.Background(), job, domain.JobStatusFailed, 1, 0, 1, "")
	assert.True(t, domain.IsKind(err, domain.ErrJobFinalized))
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextSortIndex(t *testing.T) {
	db := setupSQLite(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	idx, err := repo.NextSortIndex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)

	root := &domain.Category{Name: "Root", SortIndex: idx}
	require.NoError(t, repo.CreateCategory(ctx, root))
	require.NoError(t, repo.CreateCategory(ctx, &domain.Category{Name: "Child", ParentID: &root.ID, SortIndex: 4}))

	idx, err = repo.NextSortIndex(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	idx, err = repo.NextSortIndex(ctx, &root.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, idx)
}

func TestCategorySiblingSortIndexUnique(t *testing.T) {
	db := setupSQLite(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	root := &domain.Category{Name: "Root"}
	require.NoError(t, repo.CreateCategory(ctx, root))
	require.NoError(t, repo.CreateCategory(ctx, &domain.Category{Name: "A", ParentID: &root.ID, SortIndex: 0}))
	assert.Error(t, repo.CreateCategory(ctx, &domain.Category{Name: "B", ParentID: &root.ID, SortIndex: 0}))
}

func TestGetOrCreateTag(t *testing.T) {
	db := setupSQLite(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	first, err := repo.GetOrCreateTag(ctx, "fresh")
	require.NoError(t, err)
	second, err := repo.GetOrCreateTag(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var n int64
	require.NoError(t, db.Model(&domain.Tag{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)
}

func TestLinkProductIgnoresDuplicates(t *testing.T) {
	db := setupSQLite(t)
	repo := NewCatalogRepository(db)
	ctx := context.Background()

	category := &domain.Category{Name: "Food"}
	require.NoError(t, repo.CreateCategory(ctx, category))
	product := &domain.Product{Name: "Apple", CategoryID: category.ID}
	require.NoError(t, repo.CreateProduct(ctx, product))

	require.NoError(t, repo.LinkProduct(ctx, "job-1", product.ID))
	require.NoError(t, repo.LinkProduct(ctx, "job-1", product.ID))

	products, err := repo.ListProductsByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Food", products[0].Category.Name)

	products, err = repo.ListProductsByJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, products)
}

func TestOfferRepository(t *testing.T) {
	db := setupSQLite(t)
	repo := NewOfferRepository(db)
	ctx := context.Background()

	_, err := repo.GetByShopProduct(ctx, 1, 1)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	offer := &domain.Offer{ShopID: 1, ProductID: 1, Price: 10, Remains: 2}
	require.NoError(t, repo.Create(ctx, offer))
	assert.Error(t, repo.Create(ctx, &domain.Offer{ShopID: 1, ProductID: 1, Price: 11}))

	require.NoError(t, repo.UpdateStock(ctx, offer, 12.5, 7))
	stored, err := repo.GetByShopProduct(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 12.5, stored.Price)
	assert.Equal(t, 7, stored.Remains)
}

func TestUserRepositoryGetUploader(t *testing.T) {
	db := setupSQLite(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	shop := &domain.Shop{Name: "Main Shop"}
	require.NoError(t, db.Create(shop).Error)
	seller := &domain.User{Username: "seller", Email: "s@example.com", ShopID: &shop.ID}
	require.NoError(t, db.Create(seller).Error)
	buyer := &domain.User{Username: "buyer"}
	require.NoError(t, db.Create(buyer).Error)

	uploader, err := repo.GetUploader(ctx, seller.ID)
	require.NoError(t, err)
	assert.Equal(t, &domain.Uploader{
		UserID: seller.ID, Username: "seller", Email: "s@example.com", ShopID: shop.ID, ShopName: "Main Shop",
	}, uploader)

	_, err = repo.GetUploader(ctx, buyer.ID)
	assert.ErrorIs(t, err, domain.ErrShopNotFound)

	_, err = repo.GetUploader(ctx, 404)
	assert.ErrorIs(t, err, domain.ErrUploaderNotFound)
}

func TestFindStaleAndListRecent(t *testing.T) {
	db := setupSQLite(t)
	repo := NewImportJobRepository(db)
	ctx := context.Background()

	for _, job := range []*domain.ImportJob{
		{ID: "a", UploaderID: 1, FileName: "p.csv", Status: domain.JobStatusInProgress},
		{ID: "b", UploaderID: 1, FileName: "p.csv", Status: domain.JobStatusCompleted},
		{ID: "c", UploaderID: 1, FileName: "p.csv", Status: domain.JobStatusInProgress},
	} {
		require.NoError(t, repo.Create(ctx, job))
	}

	stale, err := repo.FindStale(ctx, 1, "p.csv", "c")
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "a", stale[0].ID)

	recent, err := repo.ListRecent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, recent, 2)
}

func TestFinalizeRejectsNonTerminalStatus(t *testing.T) {
	repo := NewImportJobRepository(setupSQLite(t))

	err := repo.Finalize(context.Background(), &domain.ImportJob{ID: "x"}, domain.JobStatusInProgress, 0, 0, 0, "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
