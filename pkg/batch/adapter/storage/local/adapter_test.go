package local

import (
	"context"
	"io"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/customer-batch/pkg/batch/adapter/storage/config"
	coreConfig "github.com/tigerroll/customer-batch/pkg/batch/core/config"
)

func newTestAdapter(t *testing.T) storageAdapter.StorageConnection {
	t.Helper()
	conn, err := NewLocalAdapter(context.Background(), storageConfig.StorageConfig{
		Type:       ProviderType,
		BaseDir:    t.TempDir(),
		BucketName: "data",
	}, "files")
	require.NoError(t, err)
	return conn
}

func TestLocalAdapter_UploadDownloadDelete(t *testing.T) {
	ctx := context.Background()
	conn := newTestAdapter(t)

	require.NoError(t, conn.Upload(ctx, "", "in/customers.csv", strings.NewReader("a,b\n"), "text/csv"))

	r, err := conn.Download(ctx, "data", "in/customers.csv")
	require.NoError(t, err)
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "a,b\n", string(body))

	require.NoError(t, conn.DeleteObject(ctx, "", "in/customers.csv"))
	require.NoError(t, conn.DeleteObject(ctx, "", "in/customers.csv"), "deleting a missing object is not an error")

	_, err = conn.Download(ctx, "", "in/customers.csv")
	assert.Error(t, err)
}

func TestLocalAdapter_ListObjects(t *testing.T) {
	ctx := context.Background()
	conn := newTestAdapter(t)
	for _, name := range []string{"out/a.csv", "out/b.csv", "other/c.csv"} {
		require.NoError(t, conn.Upload(ctx, "", name, strings.NewReader("x"), "text/csv"))
	}

	var names []string
	require.NoError(t, conn.ListObjects(ctx, "", "out/", func(n string) error {
		names = append(names, n)
		return nil
	}))
	sort.Strings(names)
	assert.Equal(t, []string{"out/a.csv", "out/b.csv"}, names)
}

func TestLocalAdapter_RejectsPathEscape(t *testing.T) {
	conn := newTestAdapter(t)
	err := conn.Upload(context.Background(), "", "../../etc/passwd", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "outside of base_dir")
}

func TestNewLocalAdapter_RequiresBaseDir(t *testing.T) {
	_, err := NewLocalAdapter(context.Background(), storageConfig.StorageConfig{Type: ProviderType}, "files")
	assert.ErrorContains(t, err, "base_dir must be specified")
}

func TestResolver_ResolvesByConfiguredType(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.Surfin.StorageConfigs["files"] = map[string]interface{}{
		"type":     "local",
		"base_dir": t.TempDir(),
	}
	cfg.Surfin.StorageConfigs["remote"] = map[string]interface{}{
		"type": "gcs",
	}

	resolver := storageAdapter.NewResolver(storageAdapter.ResolverParams{
		Providers: []storageAdapter.StorageProvider{NewProvider(cfg)},
		Cfg:       cfg,
	})

	conn, err := resolver.ResolveStorageConnection(context.Background(), "files")
	require.NoError(t, err)
	assert.Equal(t, "files", conn.Name())
	assert.Equal(t, ProviderType, conn.Type())

	again, err := resolver.ResolveStorageConnection(context.Background(), "files")
	require.NoError(t, err)
	assert.Same(t, conn, again)

	_, err = resolver.ResolveStorageConnection(context.Background(), "remote")
	assert.ErrorContains(t, err, "no storage provider registered for type 'gcs'")

	_, err = resolver.ResolveStorageConnection(context.Background(), "missing")
	assert.ErrorContains(t, err, "not found")

	assert.NoError(t, resolver.CloseAll())
}
