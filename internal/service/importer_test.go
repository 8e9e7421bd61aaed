package service

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/marketplace/internal/accounts"
	"github.com/timmy/marketplace/internal/domain"
	"github.com/timmy/marketplace/internal/source"
)

const header = "name,main-category,category,description,tag1,price,remains\n"

func TestImportSingleProduct(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.importCSV(t, header+"Product1,Category1,Subcategory1,Description1,Tag1,10,20")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 1, job.TotalRows)
	assert.Equal(t, 1, job.SuccessfulRows)
	assert.Equal(t, 0, job.FailedRows)
	assert.NotNil(t, job.CompletedAt)

	products, err := env.service.ListImportedProducts(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, products, 1)
	product := products[0]
	assert.Equal(t, "Product1", product.Name)
	assert.Equal(t, "Description1", product.Description)
	require.NotNil(t, product.Category)
	assert.Equal(t, "Subcategory1", product.Category.Name)
	require.Len(t, product.Tags, 1)
	assert.Equal(t, "Tag1", product.Tags[0].Name)

	var parent domain.Category
	require.NoError(t, env.db.Where("name = ?", "Category1").First(&parent).Error)
	require.NotNil(t, product.Category.ParentID)
	assert.Equal(t, parent.ID, *product.Category.ParentID)
	assert.Nil(t, parent.ParentID)

	var offer domain.Offer
	require.NoError(t, env.db.Where("shop_id = ? AND product_id = ?", env.shop.ID, product.ID).First(&offer).Error)
	assert.Equal(t, 10.0, offer.Price)
	assert.Equal(t, 20, offer.Remains)

	assert.Equal(t, int64(1), env.count(t, &domain.Tag{}))
	assert.Equal(t, int64(2), env.count(t, &domain.Category{}))
}

func TestImportCountsEveryValidRow(t *testing.T) {
	env := newTestEnv(t)

	var b strings.Builder
	b.WriteString(header)
	for _, name := range []string{"A", "B", "C", "D", "E"} {
		b.WriteString(name + ",Food,Fruit,fresh,\"Tag1,Tag2\",1.5,3\n")
	}

	job, err := env.importCSV(t, b.String())
	require.NoError(t, err)
	assert.Equal(t, 5, job.TotalRows)
	assert.Equal(t, 5, job.SuccessfulRows)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, int64(2), env.count(t, &domain.Tag{}))
	assert.Equal(t, int64(5), env.count(t, &domain.ImportedProductLink{}))
}

func TestImportWithoutHeader(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.importCSV(t, "Product1,Category1,,Description1,Tag1,10,20\n")
	require.NoError(t, err)
	assert.Equal(t, 1, job.SuccessfulRows)

	var product domain.Product
	require.NoError(t, env.db.Preload("Category").First(&product).Error)
	assert.Equal(t, "Category1", product.Category.Name)
}

func TestReimportIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importCSV(t, header+"Product1,Category1,Subcategory1,Description1,Tag1,10,20")
	require.NoError(t, err)

	env.setClock(time.Date(2024, 2, 1, 11, 0, 0, 0, time.UTC))
	job, err := env.importCSV(t, header+"Product1,Category1,Subcategory1,New description,\"Tag1,Tag2\",10,20")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)

	assert.Equal(t, int64(2), env.count(t, &domain.Category{}))
	assert.Equal(t, int64(2), env.count(t, &domain.Tag{}))
	assert.Equal(t, int64(1), env.count(t, &domain.Product{}))
	assert.Equal(t, int64(1), env.count(t, &domain.Offer{}))
	assert.Equal(t, int64(2), env.count(t, &domain.ImportJob{}))

	var product domain.Product
	require.NoError(t, env.db.Preload("Tags").First(&product).Error)
	assert.Equal(t, "New description", product.Description)
	assert.Len(t, product.Tags, 2)

	products, err := env.service.ListImportedProducts(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Len(t, products, 1)
}

func TestMalformedRowDoesNotAbortRun(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.importCSV(t, header+
		"Product1,Category1,Sub,Desc,Tag1,10,20\n"+
		"Broken,row\n"+
		"Product3,Category1,Sub,Desc,Tag1,oops,20\n"+
		"Product4,Category1,Sub,Desc,Tag1,10,20\n")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 4, job.TotalRows)
	assert.Equal(t, 2, job.SuccessfulRows)
	assert.Equal(t, 2, job.FailedRows)
	assert.Contains(t, job.ErrorDetail, "row 3")
	assert.Contains(t, job.ErrorDetail, "row 4")
	assert.Equal(t, int64(2), env.count(t, &domain.Product{}))

	_, err = os.Stat(filepath.Join(env.docsRoot, "failed", "10-00-00_01-02-2024_Main Shop.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(env.docsRoot, "successful"))
	assert.True(t, os.IsNotExist(err))
}

func TestStorageFailureRollsBackOnlyItsRow(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.db.Exec(`CREATE TRIGGER reject_price BEFORE INSERT ON offers
		WHEN NEW.price = 13 BEGIN SELECT RAISE(ABORT, 'boom'); END`).Error)

	job, err := env.importCSV(t, header+
		"P1,C1,S1,Desc,T1,10,1\n"+
		"P2,C2,S2,Desc,T2,13,1\n"+
		"P3,C1,S1,Desc,T3,10,1\n")
	require.NoError(t, err)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 3, job.TotalRows)
	assert.Equal(t, 2, job.SuccessfulRows)
	assert.Equal(t, 1, job.FailedRows)
	assert.Contains(t, job.ErrorDetail, "row 3")
	assert.Contains(t, job.ErrorDetail, "boom")

	assert.Equal(t, []string{"P1", "P3"}, env.names(t, &domain.Product{}))
	assert.Equal(t, []string{"C1", "S1"}, env.names(t, &domain.Category{}))
	assert.Equal(t, []string{"T1", "T3"}, env.names(t, &domain.Tag{}))
	assert.Equal(t, int64(2), env.count(t, &domain.Offer{}))

	products, err := env.service.ListImportedProducts(context.Background(), job.ID)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "P1", products[0].Name)
	assert.Equal(t, "P3", products[1].Name)
}

func TestLostLockDiscardsAppliedRows(t *testing.T) {
	env := newTestEnv(t, withMutex(&expiringMutex{checks: 2}))

	job, err := env.importCSV(t, header+
		"P1,C1,S1,Desc,T1,10,1\n"+
		"P2,C1,S1,Desc,T2,10,1\n"+
		"P3,C1,S1,Desc,T3,10,1\n")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLockLost)
	require.NotNil(t, job)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 2, job.TotalRows)
	assert.Equal(t, 0, job.SuccessfulRows)
	assert.Equal(t, 2, job.FailedRows)
	assert.Contains(t, job.ErrorDetail, domain.ErrLockLost.Error())

	for _, model := range []interface{}{&domain.Product{}, &domain.Category{}, &domain.Tag{}, &domain.Offer{}, &domain.ImportedProductLink{}} {
		assert.Equal(t, int64(0), env.count(t, model), "%T", model)
	}

	_, err = os.Stat(filepath.Join(env.docsRoot, "failed", "10-00-00_01-02-2024_Main Shop.csv"))
	assert.NoError(t, err)
}

func TestArchiveLocation(t *testing.T) {
	env := newTestEnv(t)
	content := header + "Product1,Category1,Subcategory1,Description1,Tag1,10,20"

	_, err := env.importCSV(t, content)
	require.NoError(t, err)

	archived, err := os.ReadFile(filepath.Join(env.docsRoot, "successful", "10-00-00_01-02-2024_Main Shop.csv"))
	require.NoError(t, err)
	assert.Equal(t, content, string(archived))

	entries, err := os.ReadDir(filepath.Join(env.docsRoot, "successful"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestEmptyFile(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.importCSV(t, "  \n\n")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.TotalRows)
	assert.Contains(t, job.ErrorDetail, domain.ErrEmptyFile.Error())

	_, err = os.Stat(filepath.Join(env.docsRoot, "failed", "10-00-00_01-02-2024_Main Shop.csv"))
	assert.NoError(t, err)

	msgs := env.mail.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "Import failed", msgs[0].Subject)
}

func TestEmptyFileNeverErrors(t *testing.T) {
	testCases := []struct {
		name       string
		fileName   string
		uploaderID func(*testEnv) uint
		archived   string
	}{
		{
			name:       "unknown uploader",
			fileName:   "products.csv",
			uploaderID: func(*testEnv) uint { return 999 },
			archived:   "10-00-00_01-02-2024_user-999.csv",
		},
		{
			name:       "unknown extension",
			fileName:   "products.pdf",
			uploaderID: func(e *testEnv) uint { return e.user.ID },
			archived:   "10-00-00_01-02-2024_Main Shop.csv",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)

			id, err := env.service.StartImport(context.Background(),
				&source.Upload{FileName: tc.fileName, Content: []byte(" \n")}, tc.uploaderID(env))
			require.NoError(t, err)
			require.NotEmpty(t, id)

			job, err := env.service.GetImportStatus(context.Background(), id)
			require.NoError(t, err)
			assert.Equal(t, domain.JobStatusFailed, job.Status)
			assert.Equal(t, 0, job.TotalRows)
			assert.Contains(t, job.ErrorDetail, domain.ErrEmptyFile.Error())

			_, err = os.Stat(filepath.Join(env.docsRoot, "failed", tc.archived))
			assert.NoError(t, err)
			assert.Len(t, env.mail.messages(), 1)
		})
	}
}

func TestHeaderOnlyFileFails(t *testing.T) {
	env := newTestEnv(t)

	job, err := env.importCSV(t, header)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 0, job.TotalRows)
}

func TestUnknownUploader(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.service.StartImport(context.Background(),
		&source.Upload{FileName: "products.csv", Content: []byte(header + "P,C,S,D,T,1,1")}, 999)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUploaderNotFound)
	require.NotEmpty(t, id)

	job, err := env.service.GetImportStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, int64(0), env.count(t, &domain.Product{}))

	_, err = os.Stat(filepath.Join(env.docsRoot, "failed", "10-00-00_01-02-2024_user-999.csv"))
	assert.NoError(t, err)
}

func TestUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t)

	id, err := env.service.StartImport(context.Background(),
		&source.Upload{FileName: "products.pdf", Content: []byte("%PDF")}, env.user.ID)
	assert.ErrorIs(t, err, domain.ErrUnsupportedFormat)

	job, err := env.service.GetImportStatus(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
}

func TestOfferRefreshPolicy(t *testing.T) {
	testCases := []struct {
		name        string
		opts        []envOption
		wantPrice   float64
		wantRemains int
	}{
		{name: "existing offer kept", wantPrice: 10, wantRemains: 20},
		{name: "existing offer refreshed", opts: []envOption{withRefreshOffers()}, wantPrice: 15, wantRemains: 5},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.opts...)

			_, err := env.importCSV(t, header+"Product1,Category1,Sub,Desc,Tag1,10,20")
			require.NoError(t, err)
			_, err = env.importCSV(t, header+"Product1,Category1,Sub,Desc,Tag1,15,5")
			require.NoError(t, err)

			var offers []domain.Offer
			require.NoError(t, env.db.Find(&offers).Error)
			require.Len(t, offers, 1)
			assert.Equal(t, tc.wantPrice, offers[0].Price)
			assert.Equal(t, tc.wantRemains, offers[0].Remains)
		})
	}
}

func TestImportsAreSerialized(t *testing.T) {
	var dir *gatedDirectory
	env := newTestEnv(t, withDirectory(func(inner accounts.Directory) accounts.Directory {
		dir = &gatedDirectory{Directory: inner, entered: make(chan struct{}, 2), gate: make(chan struct{})}
		return dir
	}))
	ctx := context.Background()
	upload := &source.Upload{FileName: "products.csv", Content: []byte(header + "Product1,Category1,Sub,Desc,Tag1,10,20")}

	type outcome struct {
		job *domain.ImportJob
		err error
	}
	first := make(chan outcome, 1)
	second := make(chan outcome, 1)

	go func() {
		job, err := env.service.RunJob(ctx, "job-first", upload, env.user.ID)
		first <- outcome{job, err}
	}()
	<-dir.entered

	go func() {
		job, err := env.service.RunJob(ctx, "job-second", upload, env.user.ID)
		second <- outcome{job, err}
	}()

	// The second run must not start while the first holds the lock.
	select {
	case <-dir.entered:
		t.Fatal("second import started while the first held the lock")
	case <-time.After(200 * time.Millisecond):
	}
	_, err := env.service.GetImportStatus(ctx, "job-second")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)

	close(dir.gate)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, domain.JobStatusCompleted, res.job.Status)

	res = <-second
	require.NoError(t, res.err)
	assert.Equal(t, domain.JobStatusCompleted, res.job.Status)
	assert.Equal(t, int64(1), env.count(t, &domain.Product{}))
}

func TestLockWaitTimeout(t *testing.T) {
	env := newTestEnv(t, withLockWaitTimeout(50*time.Millisecond))
	ctx := context.Background()

	lease, err := env.mutex.Acquire(ctx)
	require.NoError(t, err)
	defer lease.Release(ctx)

	id, err := env.service.StartImport(ctx, &source.Upload{FileName: "products.csv", Content: []byte(header)}, env.user.ID)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.Empty(t, id)
	assert.Equal(t, int64(0), env.count(t, &domain.ImportJob{}))
}

func TestLockReleasedAfterRun(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importCSV(t, "")
	require.NoError(t, err)

	lease, err := env.mutex.TryAcquire(context.Background(), 100*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, lease.Release(context.Background()))
}

func TestMailFailureDoesNotFailRun(t *testing.T) {
	env := newTestEnv(t)
	env.mail.err = errSMTPDown

	job, err := env.importCSV(t, header+"Product1,Category1,Sub,Desc,Tag1,10,20")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Len(t, env.mail.messages(), 1)
}

func TestNotificationSummary(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importCSV(t, header+"Product1,Category1,Sub,Desc,Tag1,10,20\nbad\n")
	require.NoError(t, err)

	msgs := env.mail.messages()
	require.Len(t, msgs, 1)
	msg := msgs[0]
	assert.Equal(t, "Import failed", msg.Subject)
	assert.Equal(t, []string{"admin@market.local"}, msg.To)
	assert.Contains(t, msg.Body, "File: products.csv")
	assert.Contains(t, msg.Body, "seller (seller@example.com)")
	assert.Contains(t, msg.Body, "Total rows: 2")
	assert.Contains(t, msg.Body, "Failed rows: 1")
	assert.Contains(t, msg.Body, "row 3")
}

func TestImportMetricsRecorded(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.importCSV(t, header+"Product1,Category1,Sub,Desc,Tag1,10,20\nbad\n")
	require.NoError(t, err)

	families, err := env.metrics.Registry().Gather()
	require.NoError(t, err)

	rows := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "catalog_import_rows_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, label := range m.GetLabel() {
				if label.GetName() == "outcome" {
					rows[label.GetValue()] = m.GetCounter().GetValue()
				}
			}
		}
	}
	assert.Equal(t, map[string]float64{"success": 1, "failed": 1}, rows)
}

func TestListImportedProductsUnknownJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.service.ListImportedProducts(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrJobNotFound)
}
